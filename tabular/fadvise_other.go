//go:build !linux

package tabular

import "os"

func adviseSequential(_ *os.File) {}
