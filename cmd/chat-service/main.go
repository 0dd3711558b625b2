package main

import (
	"os"

	"github.com/voxrelay/voxrelay/chatservice"
)

func main() {
	if err := chatservice.Run(); err != nil {
		os.Exit(1)
	}
}
