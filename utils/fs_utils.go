package utils

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
)

// CreateFile creates a file with the given name inside the provided directory, creating the directory first if it
// does not exist. An empty directory creates the file in the current working directory.
func CreateFile(directory string, fileName string) (*os.File, error) {
	filePath := fileName
	if directory != "" {
		if err := MakeDirectory(directory); err != nil {
			return nil, err
		}
		filePath = filepath.Join(directory, fileName)
	}

	file, err := os.Create(filePath)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return file, nil
}

// MakeDirectory creates a directory at the given path, including any parent directories which do not exist.
// Returns an error if the path refers to an existing file or the directory could not be created.
func MakeDirectory(dirToMake string) error {
	dirInfo, err := os.Stat(dirToMake)
	if err != nil {
		if os.IsNotExist(err) {
			return errors.WithStack(os.MkdirAll(dirToMake, 0755))
		}
		return errors.WithStack(err)
	}

	if !dirInfo.IsDir() {
		return fmt.Errorf("cannot create directory %s because a file with the same name exists", dirToMake)
	}
	return nil
}

// DeleteDirectory deletes a directory and its contents. Deleting a directory that does not exist is a no-op.
func DeleteDirectory(directoryPath string) error {
	dirInfo, err := os.Stat(directoryPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return errors.WithStack(err)
	}

	if !dirInfo.IsDir() {
		return fmt.Errorf("cannot delete directory as the provided path refers to a file")
	}
	return errors.WithStack(os.RemoveAll(directoryPath))
}

// GetFileNameWithoutExtension obtains a filename without the extension and without any preceding directory paths.
func GetFileNameWithoutExtension(filePath string) string {
	base := filepath.Base(filePath)
	return base[:len(base)-len(filepath.Ext(base))]
}

// DirectoryExists reports whether a directory exists at the given path. Returns an error if the path refers to a
// file.
func DirectoryExists(directoryPath string) (bool, error) {
	dirInfo, err := os.Stat(directoryPath)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, errors.WithStack(err)
	}
	if !dirInfo.IsDir() {
		return false, fmt.Errorf("%s refers to a file", directoryPath)
	}
	return true, nil
}
