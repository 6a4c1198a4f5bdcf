package main

import (
	"os"

	"github.com/golang/glog"

	"ideasync/cmd"
)

func main() {
	defer glog.Flush()
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
