package corpus

import (
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/crytic/evosynth/utils"
	"github.com/pkg/errors"
)

// corpusFile holds the encoded data of one corpus item and its state on the filesystem.
type corpusFile struct {
	// fileName describes the name of the file within corpusDirectory.path.
	fileName string

	// data holds the encoded item.
	data []byte

	// writtenToDisk indicates whether data has been flushed. If false, the file is written or overwritten on the
	// next flush.
	writtenToDisk bool
}

// corpusDirectory keeps the encoded items of one directory in sync with the filesystem.
type corpusDirectory struct {
	// path is the directory the files are stored in. An empty path keeps the files in memory only.
	path string

	files []*corpusFile

	// removed holds the names of flushed files that must be deleted on the next flush.
	removed []string

	filesLock sync.Mutex
}

func newCorpusDirectory(path string) *corpusDirectory {
	return &corpusDirectory{
		path:  path,
		files: make([]*corpusFile, 0),
	}
}

// addFile adds a file to the directory, replacing the data of a file with the same name. Nothing is written until
// writeFiles is called.
func (cd *corpusDirectory) addFile(fileName string, data []byte) {
	cd.filesLock.Lock()
	defer cd.filesLock.Unlock()

	lowerFileName := strings.ToLower(fileName)
	for _, file := range cd.files {
		if lowerFileName == strings.ToLower(file.fileName) {
			file.data = data
			file.writtenToDisk = false
			return
		}
	}
	cd.files = append(cd.files, &corpusFile{fileName: fileName, data: data})
}

// removeFile removes a file from the directory. A file already on disk is deleted on the next flush. Reports
// whether the file was found.
func (cd *corpusDirectory) removeFile(fileName string) bool {
	cd.filesLock.Lock()
	defer cd.filesLock.Unlock()

	lowerFileName := strings.ToLower(fileName)
	for i, file := range cd.files {
		if lowerFileName == strings.ToLower(file.fileName) {
			cd.files = append(cd.files[:i], cd.files[i+1:]...)
			if file.writtenToDisk {
				cd.removed = append(cd.removed, file.fileName)
			}
			return true
		}
	}
	return false
}

// readFiles replaces the files of the directory with the files on disk matching the glob pattern.
func (cd *corpusDirectory) readFiles(filePattern string) error {
	if cd.path == "" {
		return nil
	}
	filePaths, err := filepath.Glob(filepath.Join(cd.path, filePattern))
	if err != nil {
		return errors.WithStack(err)
	}

	cd.filesLock.Lock()
	defer cd.filesLock.Unlock()
	cd.files = make([]*corpusFile, 0, len(filePaths))
	cd.removed = nil
	for _, filePath := range filePaths {
		b, err := os.ReadFile(filePath)
		if err != nil {
			return errors.WithStack(err)
		}
		cd.files = append(cd.files, &corpusFile{
			fileName:      filepath.Base(filePath),
			data:          b,
			writtenToDisk: true,
		})
	}
	return nil
}

// writeFiles flushes every unwritten file to disk and deletes the files removed since the last flush.
func (cd *corpusDirectory) writeFiles() error {
	if cd.path == "" {
		return nil
	}

	cd.filesLock.Lock()
	defer cd.filesLock.Unlock()

	if err := utils.MakeDirectory(cd.path); err != nil {
		return err
	}
	for _, fileName := range cd.removed {
		err := os.Remove(filepath.Join(cd.path, fileName))
		if err != nil && !os.IsNotExist(err) {
			return errors.WithStack(err)
		}
	}
	cd.removed = nil

	for _, file := range cd.files {
		if file.writtenToDisk {
			continue
		}
		if len(file.fileName) == 0 {
			return errors.New("failed to flush corpus item to disk as it does not have a filename")
		}
		if err := os.WriteFile(filepath.Join(cd.path, file.fileName), file.data, 0644); err != nil {
			return errors.Wrap(err, "an error occurred while writing corpus data to file")
		}
		file.writtenToDisk = true
	}
	return nil
}
