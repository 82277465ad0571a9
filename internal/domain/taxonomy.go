package domain

import (
	"strings"
	"time"
)

// Category — раздел каталога. Подкатегория ссылается на корневую категорию
// через ParentID; глубина иерархии ограничена одним уровнем.
type Category struct {
	ID        string
	ParentID  string
	Name      string
	ImageRef  string
	Version   int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// CategoryDraft — редактируемые поля категории.
type CategoryDraft struct {
	Name     string
	ImageRef string
	ParentID string
}

// IsRoot сообщает, что категория верхнего уровня.
func (c Category) IsRoot() bool {
	return c.ParentID == ""
}

// NewCategory создаёт категорию. parent передаётся, если задан draft.ParentID.
func NewCategory(id string, draft CategoryDraft, parent *Category, now time.Time) (Category, error) {
	category := Category{ID: id, CreatedAt: now}
	if err := category.Apply(draft, parent, now); err != nil {
		return Category{}, err
	}
	return category, nil
}

// Apply применяет правки. Родителем может быть только корневая категория,
// и категория не может быть родителем самой себе.
func (c *Category) Apply(draft CategoryDraft, parent *Category, now time.Time) error {
	name := strings.TrimSpace(draft.Name)
	if name == "" {
		return ErrNameRequired
	}
	parentID := strings.TrimSpace(draft.ParentID)
	if parentID != "" {
		if parent == nil || parent.ID != parentID {
			return ErrUnknownCategory
		}
		if parent.ID == c.ID || !parent.IsRoot() {
			return ErrCategoryDepth
		}
	}

	c.Name = name
	c.ImageRef = draft.ImageRef
	c.ParentID = parentID
	c.UpdatedAt = now
	return nil
}

// DeliveryMode — способ доставки, который поставщик указывает у товара.
type DeliveryMode struct {
	ID        string
	Name      string
	Kind      string
	Details   string
	Version   int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// DeliveryModeDraft — редактируемые поля способа доставки.
type DeliveryModeDraft struct {
	Name    string
	Kind    string
	Details string
}

// NewDeliveryMode создаёт способ доставки.
func NewDeliveryMode(id string, draft DeliveryModeDraft, now time.Time) (DeliveryMode, error) {
	mode := DeliveryMode{ID: id, CreatedAt: now}
	if err := mode.Apply(draft, now); err != nil {
		return DeliveryMode{}, err
	}
	return mode, nil
}

// Apply применяет правки.
func (m *DeliveryMode) Apply(draft DeliveryModeDraft, now time.Time) error {
	name := strings.TrimSpace(draft.Name)
	if name == "" {
		return ErrNameRequired
	}
	m.Name = name
	m.Kind = strings.TrimSpace(draft.Kind)
	m.Details = draft.Details
	m.UpdatedAt = now
	return nil
}
