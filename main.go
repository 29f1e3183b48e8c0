package main

import (
	"github.com/hierarch-ai/hrag/cmd"
	_ "github.com/hierarch-ai/hrag/pkg/logger/autoload"
)

func main() {
	cmd.Execute()
}
