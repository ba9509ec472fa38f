package mapper

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"reflect"
	"time"

	"github.com/i5heu/ouroboros-ocm/pkg/repository"
)

// File is embedded by entities that are stored as nt:file nodes. The file
// node sits inside a folder named after the field, its payload and metadata
// live on the jcr:content child.
type File struct {
	Name string `ocm:"name"`
	Path string `ocm:"path"`

	MimeType     string
	LastModified time.Time
	Encoding     string
	Data         *DataProvider
}

func (f *File) fileEntity() *File { return f }

type fileEntity interface {
	fileEntity() *File
}

var (
	fileType       = reflect.TypeOf(File{})
	fileEntityType = reflect.TypeOf((*fileEntity)(nil)).Elem()
)

func isFileType(t reflect.Type) bool {
	if t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t == fileType {
		return true
	}
	return t.Kind() == reflect.Struct && reflect.PointerTo(t).Implements(fileEntityType)
}

// DataKind tells where the payload of a DataProvider comes from.
type DataKind int

const (
	DataBytes DataKind = iota
	DataFile
	DataStream
)

func (k DataKind) String() string {
	switch k {
	case DataBytes:
		return "bytes"
	case DataFile:
		return "file"
	case DataStream:
		return "stream"
	}
	return fmt.Sprintf("DataKind(%d)", int(k))
}

// DataProvider holds the payload of a file.
type DataProvider struct {
	kind   DataKind
	bytes  []byte
	path   string
	reader io.Reader
	blob   repository.Blob
}

func BytesData(data []byte) *DataProvider {
	return &DataProvider{kind: DataBytes, bytes: data}
}

// FileData reads the payload from a file on the local disk when it is stored.
func FileData(path string) *DataProvider {
	return &DataProvider{kind: DataFile, path: path}
}

// StreamData stores the payload read from r. The reader is consumed once.
func StreamData(r io.Reader) *DataProvider {
	return &DataProvider{kind: DataStream, reader: r}
}

func blobData(b repository.Blob) *DataProvider {
	return &DataProvider{kind: DataStream, blob: b}
}

func (d *DataProvider) Kind() DataKind {
	return d.kind
}

// Open returns a reader for the payload. Payloads loaded from the repository
// can be opened any number of times.
func (d *DataProvider) Open() (io.ReadCloser, error) {
	switch {
	case d.blob != nil:
		return d.blob.Open()
	case d.kind == DataFile:
		return os.Open(d.path)
	case d.kind == DataStream && d.reader != nil:
		if rc, ok := d.reader.(io.ReadCloser); ok {
			return rc, nil
		}
		return io.NopCloser(d.reader), nil
	}
	return io.NopCloser(bytes.NewReader(d.bytes)), nil
}

// Bytes returns the whole payload.
func (d *DataProvider) Bytes() ([]byte, error) {
	if d.kind == DataBytes && d.blob == nil {
		return d.bytes, nil
	}
	rc, err := d.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

// store writes the payload to the jcr:data property of n.
func (d *DataProvider) store(n repository.Node) error {
	switch {
	case d.blob != nil:
		return n.SetProperty(repository.PropertyData, repository.BlobValue(d.blob))
	case d.kind == DataFile:
		f, err := os.Open(d.path)
		if err != nil {
			return fmt.Errorf("error opening file data: %w", err)
		}
		defer f.Close()
		return n.SetProperty(repository.PropertyData, repository.BinaryValue(f))
	case d.kind == DataStream:
		if d.reader == nil {
			return nil
		}
		return n.SetProperty(repository.PropertyData, repository.BinaryValue(d.reader))
	}
	if d.bytes == nil {
		return nil
	}
	return n.SetProperty(repository.PropertyData, repository.BytesValue(d.bytes))
}

// fileOf returns the embedded File of a file entity.
func fileOf(sv reflect.Value) *File {
	if sv.Type() == fileType {
		return sv.Addr().Interface().(*File)
	}
	return sv.Addr().Interface().(fileEntity).fileEntity()
}

func writeFileContent(content repository.Node, f *File) error {
	if err := content.SetProperty(repository.PropertyMimeType, repository.StringValue(f.MimeType)); err != nil {
		return err
	}
	lastModified := f.LastModified
	if lastModified.IsZero() {
		lastModified = time.Now()
	}
	if err := content.SetProperty(repository.PropertyLastModified, repository.DateValue(lastModified)); err != nil {
		return err
	}
	if f.Encoding != "" {
		if err := content.SetProperty(repository.PropertyEncoding, repository.StringValue(f.Encoding)); err != nil {
			return err
		}
	}
	if f.Data != nil {
		if err := f.Data.store(content); err != nil {
			return fmt.Errorf("error storing file data: %w", err)
		}
	}
	return nil
}

func readFileContent(content repository.Node, f *File, mode LoadMode) error {
	if content.HasProperty(repository.PropertyMimeType) {
		v, err := singleValue(content, repository.PropertyMimeType)
		if err != nil {
			return err
		}
		if f.MimeType, err = v.String(); err != nil {
			return err
		}
	}
	if content.HasProperty(repository.PropertyLastModified) {
		v, err := singleValue(content, repository.PropertyLastModified)
		if err != nil {
			return err
		}
		if f.LastModified, err = v.Date(); err != nil {
			return err
		}
	}
	if content.HasProperty(repository.PropertyEncoding) {
		v, err := singleValue(content, repository.PropertyEncoding)
		if err != nil {
			return err
		}
		if f.Encoding, err = v.String(); err != nil {
			return err
		}
	}

	if mode == LoadNone || !content.HasProperty(repository.PropertyData) {
		return nil
	}
	v, err := singleValue(content, repository.PropertyData)
	if err != nil {
		return err
	}
	switch mode {
	case LoadBytes:
		data, err := readBytes(v)
		if err != nil {
			return err
		}
		f.Data = BytesData(data)
	case LoadStream:
		if b := v.Blob(); b != nil {
			f.Data = blobData(b)
		} else {
			f.Data = StreamData(v.Reader())
		}
	}
	return nil
}

func singleValue(n repository.Node, name string) (repository.Value, error) {
	p, err := n.Property(name)
	if err != nil {
		return repository.Value{}, err
	}
	if p.IsMultiple() {
		values, err := p.Values()
		if err != nil || len(values) == 0 {
			return repository.Value{}, err
		}
		return values[0], nil
	}
	return p.Value()
}
