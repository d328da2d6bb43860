package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

type FileSidecar struct {
	Name string `json:"name"`
	Type string `json:"type"`
	Size int64  `json:"size"`
	Key  string `json:"key"`
}

type LinkPreview struct {
	URL         string `json:"url"`
	Title       string `json:"title,omitempty"`
	Description string `json:"description,omitempty"`
	Image       string `json:"image,omitempty"`
}

// ReplySidecar снимок сообщения, на которое отвечают, на момент ответа.
type ReplySidecar struct {
	MessageID uuid.UUID    `json:"id"`
	Username  string       `json:"username"`
	Content   string       `json:"content"`
	CreatedAt time.Time    `json:"created_at"`
	File      *FileSidecar `json:"file,omitempty"`
}

// SidecarKind битовый набор присутствующих групп.
type SidecarKind uint8

const (
	SidecarReply SidecarKind = 1 << iota
	SidecarLink
	SidecarFile

	SidecarPlain SidecarKind = 0
)

func (k SidecarKind) Has(flag SidecarKind) bool {
	return k&flag != 0
}

func (k SidecarKind) String() string {
	if k == SidecarPlain {
		return "plain"
	}
	var parts []string
	if k.Has(SidecarReply) {
		parts = append(parts, "reply")
	}
	if k.Has(SidecarLink) {
		parts = append(parts, "link")
	}
	if k.Has(SidecarFile) {
		parts = append(parts, "file")
	}
	return strings.Join(parts, "+")
}

// Sidecars необязательные группы данных сообщения. Каждая группа либо целиком есть, либо nil.
type Sidecars struct {
	Reply *ReplySidecar
	Link  *LinkPreview
	File  *FileSidecar
}

func (s Sidecars) Kind() SidecarKind {
	var k SidecarKind
	if s.Reply != nil {
		k |= SidecarReply
	}
	if s.Link != nil {
		k |= SidecarLink
	}
	if s.File != nil {
		k |= SidecarFile
	}
	return k
}

// Sidecars собирает группы из плоских колонок. Неполная группа считается отсутствующей.
func (m *Message) Sidecars() Sidecars {
	var s Sidecars

	if m.ReplyToID != nil && m.ReplyUsername != nil {
		s.Reply = &ReplySidecar{
			MessageID: *m.ReplyToID,
			Username:  *m.ReplyUsername,
			Content:   deref(m.ReplyContent),
		}
		if m.ReplyCreatedAt != nil {
			s.Reply.CreatedAt = *m.ReplyCreatedAt
		}
		if m.ReplyFileKey != nil {
			s.Reply.File = &FileSidecar{
				Name: deref(m.ReplyFileName),
				Type: deref(m.ReplyFileType),
				Key:  *m.ReplyFileKey,
			}
			if m.ReplyFileSize != nil {
				s.Reply.File.Size = *m.ReplyFileSize
			}
		}
	}

	if m.LinkURL != nil {
		s.Link = &LinkPreview{
			URL:         *m.LinkURL,
			Title:       deref(m.LinkTitle),
			Description: deref(m.LinkDescription),
			Image:       deref(m.LinkImage),
		}
	}

	if m.FileKey != nil {
		s.File = &FileSidecar{
			Name: deref(m.FileName),
			Type: deref(m.FileType),
			Key:  *m.FileKey,
		}
		if m.FileSize != nil {
			s.File.Size = *m.FileSize
		}
	}

	return s
}

// SetSidecars записывает группы в колонки; nil очищает группу целиком.
func (m *Message) SetSidecars(s Sidecars) {
	m.ReplyToID, m.ReplyUsername, m.ReplyContent, m.ReplyCreatedAt = nil, nil, nil, nil
	m.ReplyFileName, m.ReplyFileType, m.ReplyFileSize, m.ReplyFileKey = nil, nil, nil, nil
	if r := s.Reply; r != nil {
		id, created := r.MessageID, r.CreatedAt
		m.ReplyToID = &id
		m.ReplyUsername = ptr(r.Username)
		m.ReplyContent = ptr(r.Content)
		m.ReplyCreatedAt = &created
		if f := r.File; f != nil {
			size := f.Size
			m.ReplyFileName = ptr(f.Name)
			m.ReplyFileType = ptr(f.Type)
			m.ReplyFileSize = &size
			m.ReplyFileKey = ptr(f.Key)
		}
	}

	m.LinkURL, m.LinkTitle, m.LinkDescription, m.LinkImage = nil, nil, nil, nil
	if l := s.Link; l != nil {
		m.LinkURL = ptr(l.URL)
		m.LinkTitle = ptr(l.Title)
		m.LinkDescription = ptr(l.Description)
		m.LinkImage = ptr(l.Image)
	}

	m.FileName, m.FileType, m.FileSize, m.FileKey = nil, nil, nil, nil
	if f := s.File; f != nil {
		size := f.Size
		m.FileName = ptr(f.Name)
		m.FileType = ptr(f.Type)
		m.FileSize = &size
		m.FileKey = ptr(f.Key)
	}
}

// Snapshot делает снимок сообщения для сайдкара ответа. Вложенные ответы не переносятся.
func (m *Message) Snapshot() *ReplySidecar {
	return &ReplySidecar{
		MessageID: m.ID,
		Username:  m.Username,
		Content:   m.Content,
		CreatedAt: m.CreatedAt,
		File:      m.Sidecars().File,
	}
}

func ptr(s string) *string {
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
