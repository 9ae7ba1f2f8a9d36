package pdf

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gabriel-vasile/mimetype"
)

// MIMEType is the only content type accepted for upload.
const MIMEType = "application/pdf"

// InvalidFileMessage is shown when a selected file is rejected.
const InvalidFileMessage = "Please select a valid PDF file"

// ErrNotPDF is returned for files whose content is not a PDF, whatever their extension.
var ErrNotPDF = errors.New("not a PDF file")

// File is a PDF selected for upload.
type File struct {
	Name string
	Data []byte
	MIME string
}

// Open reads path and checks its content type.
func Open(path string) (*File, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat file: %w", err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%s is a directory: %w", path, ErrNotPDF)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}
	return FromBytes(filepath.Base(path), data)
}

// FromBytes validates in-memory content under the given file name.
func FromBytes(name string, data []byte) (*File, error) {
	mt := mimetype.Detect(data)
	if !mt.Is(MIMEType) {
		return nil, fmt.Errorf("%s has type %s: %w", name, mt.String(), ErrNotPDF)
	}
	return &File{Name: name, Data: data, MIME: MIMEType}, nil
}
