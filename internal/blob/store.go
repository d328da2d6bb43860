package blob

import (
	"context"
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/cockroachdb/pebble"
)

var (
	ErrNotFound       = errors.New("blob not found")
	ErrInvalidPayload = errors.New("invalid file payload")
)

const keyPrefix = "blob/"

// Store хранит байты вложений и их content-type в pebble.
type Store struct {
	db *pebble.DB
}

func Open(dir string) (*Store, error) {
	db, err := pebble.Open(dir, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("open blob store %s: %w", dir, err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Put сохраняет данные под ключом и возвращает этот ключ.
func (s *Store) Put(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if key == "" {
		return "", errors.New("empty blob key")
	}

	value := binary.AppendUvarint(nil, uint64(len(contentType)))
	value = append(value, contentType...)
	value = append(value, data...)

	if err := s.db.Set([]byte(keyPrefix+key), value, pebble.Sync); err != nil {
		return "", fmt.Errorf("put blob %s: %w", key, err)
	}
	return key, nil
}

// Get нужен файловому сервису и тестам; ядро чата только пишет.
func (s *Store) Get(key string) ([]byte, string, error) {
	value, closer, err := s.db.Get([]byte(keyPrefix + key))
	if errors.Is(err, pebble.ErrNotFound) {
		return nil, "", ErrNotFound
	}
	if err != nil {
		return nil, "", err
	}
	defer closer.Close()

	n, w := binary.Uvarint(value)
	if w <= 0 || uint64(len(value)-w) < n {
		return nil, "", fmt.Errorf("corrupt blob %s", key)
	}
	contentType := string(value[w : w+int(n)])
	data := append([]byte(nil), value[w+int(n):]...)
	return data, contentType, nil
}

var unsafeChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// SanitizeFilename оставляет только безопасные символы имени файла.
func SanitizeFilename(name string) string {
	name = filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	name = unsafeChars.ReplaceAllString(name, "_")
	name = strings.Trim(name, "._")
	if len(name) > 100 {
		name = name[len(name)-100:]
	}
	if name == "" {
		return "file"
	}
	return name
}

// ObjectKey ключ из времени загрузки и имени файла. Одинаковые байты не дедуплицируются.
func ObjectKey(uploadedAt time.Time, filename string) string {
	return fmt.Sprintf("%d-%s", uploadedAt.UnixMilli(), SanitizeFilename(filename))
}

// DecodePayload принимает base64 или data: URL. Второе значение: тип из data: URL, если был.
func DecodePayload(payload string) ([]byte, string, error) {
	payload = strings.TrimSpace(payload)
	var contentType string

	if strings.HasPrefix(payload, "data:") {
		header, body, ok := strings.Cut(payload[len("data:"):], ",")
		if !ok || !strings.HasSuffix(header, ";base64") {
			return nil, "", ErrInvalidPayload
		}
		contentType = strings.TrimSuffix(header, ";base64")
		payload = body
	}

	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		if data, err = base64.RawStdEncoding.DecodeString(payload); err != nil {
			return nil, "", fmt.Errorf("%w: %v", ErrInvalidPayload, err)
		}
	}
	if len(data) == 0 {
		return nil, "", ErrInvalidPayload
	}
	return data, contentType, nil
}
