package ledger

import (
	"encoding/json"
	"errors"

	"github.com/betbot/optionsdesk/pkg/persistence"
)

// FileBackend 以 JSON 文件保存（pkg/persistence，先写临时文件再 rename）
type FileBackend struct {
	store persistence.Store
}

func NewFileBackend(dir string) *FileBackend {
	return &FileBackend{store: persistence.NewJSONFileService(dir).NewStore("optionsdesk", "orderHistory")}
}

func (f *FileBackend) Load() ([]byte, error) {
	var raw json.RawMessage
	if err := f.store.Load(&raw); err != nil {
		if errors.Is(err, persistence.ErrNotExists) {
			return nil, nil
		}
		return nil, err
	}
	return raw, nil
}

func (f *FileBackend) Save(blob []byte) error {
	return f.store.Save(json.RawMessage(blob))
}

func (f *FileBackend) Clear() error {
	return f.store.Delete()
}

func (f *FileBackend) Close() error { return nil }
