package duckdb

import (
	"io"
	"os"
)

func writeFile(path string, reader io.Reader) (int64, error) {
	file, err := os.Create(path)
	if err != nil {
		return 0, err
	}
	defer func() { _ = file.Close() }()

	return io.Copy(file, reader)
}
