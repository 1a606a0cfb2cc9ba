// Package thumbnail implements the copy-on-write protocol spec.md §4.6
// describes for sharing a Thumbnail row across multiple entities:
// internal/entity's ThumbnailRepository and ThumbnailLinkingRepository know
// nothing about sharing, they just store rows. This package is the only
// caller allowed to decide when a mutation must clone instead of update in
// place, and the only caller allowed to delete a Thumbnail row once its
// refcount reaches zero.
package thumbnail

import (
	"errors"
	"fmt"
	"os"

	"github.com/rs/zerolog"

	"github.com/silverreel/medialib/internal/entity"
	"github.com/silverreel/medialib/internal/mlerrors"
	"github.com/silverreel/medialib/internal/model"
)

// Manager owns the entity<->thumbnail linking table and enforces
// copy-on-write.
type Manager struct {
	thumbnails *entity.ThumbnailRepository
	linking    *entity.ThumbnailLinkingRepository
	log        zerolog.Logger
}

func New(thumbnails *entity.ThumbnailRepository, linking *entity.ThumbnailLinkingRepository, log zerolog.Logger) *Manager {
	return &Manager{thumbnails: thumbnails, linking: linking, log: log}
}

// New describes the artwork a caller wants an entity to point at; it never
// carries an id, since whether it becomes a new row or overwrites an
// existing one is exactly what SetThumbnail decides.
type New struct {
	Mrl     string
	Origin  model.ThumbnailOrigin
	IsOwned bool
}

// SetThumbnail implements spec.md §4.6's protocol verbatim:
//   - no current thumbnail: insert new and link.
//   - current thumbnail shared (refcount > 1): clone a new row, unlink the
//     old one from entity, link the new one. The old row's other referrers
//     are untouched — this is the "copy on write" itself.
//   - current thumbnail not shared: update the existing row in place.
func (m *Manager) SetThumbnail(entityID int64, entityType model.EntityType, size model.ThumbnailSizeType, n New) (int64, error) {
	currentID, err := m.linking.Fetch(entityID, entityType, size)
	if err != nil && !errors.Is(err, mlerrors.ErrNotFound) {
		return 0, fmt.Errorf("fetch current thumbnail: %w", err)
	}

	if errors.Is(err, mlerrors.ErrNotFound) {
		t := &model.Thumbnail{Mrl: n.Mrl, Origin: n.Origin, IsUserProvided: n.Origin == model.ThumbnailOriginUserProvided, IsOwned: n.IsOwned, SharedCount: 1}
		if err := m.thumbnails.Create(t); err != nil {
			return 0, fmt.Errorf("create thumbnail: %w", err)
		}
		if err := m.linking.Link(t.ID, entityID, entityType, size); err != nil {
			return 0, fmt.Errorf("link new thumbnail: %w", err)
		}
		return t.ID, nil
	}

	refcount, err := m.linking.CountReferrers(currentID)
	if err != nil {
		return 0, fmt.Errorf("count referrers: %w", err)
	}

	if refcount > 1 {
		clone := &model.Thumbnail{Mrl: n.Mrl, Origin: n.Origin, IsUserProvided: n.Origin == model.ThumbnailOriginUserProvided, IsOwned: n.IsOwned, SharedCount: 1}
		if err := m.thumbnails.Create(clone); err != nil {
			return 0, fmt.Errorf("clone thumbnail: %w", err)
		}
		if err := m.linking.Link(clone.ID, entityID, entityType, size); err != nil {
			return 0, fmt.Errorf("relink to clone: %w", err)
		}
		if _, err := m.thumbnails.DecrementShared(currentID); err != nil {
			return 0, fmt.Errorf("decrement old shared count: %w", err)
		}
		return clone.ID, nil
	}

	if err := m.thumbnails.Update(currentID, n.Mrl, n.Origin, n.IsOwned); err != nil {
		return 0, fmt.Errorf("update unshared thumbnail: %w", err)
	}
	return currentID, nil
}

// RemoveThumbnail unlinks entity from its thumbnail of the given size; when
// the unlinked thumbnail's refcount reaches zero the row is deleted and, if
// it was owned, its backing file is scheduled for deletion.
func (m *Manager) RemoveThumbnail(entityID int64, entityType model.EntityType, size model.ThumbnailSizeType) error {
	currentID, err := m.linking.Fetch(entityID, entityType, size)
	if errors.Is(err, mlerrors.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("fetch thumbnail to remove: %w", err)
	}
	if err := m.linking.Unlink(entityID, entityType, size); err != nil {
		return fmt.Errorf("unlink thumbnail: %w", err)
	}
	count, err := m.linking.CountReferrers(currentID)
	if err != nil {
		return fmt.Errorf("count remaining referrers: %w", err)
	}
	if count > 0 {
		return nil
	}
	return m.destroy(currentID)
}

func (m *Manager) destroy(id int64) error {
	t, err := m.thumbnails.Fetch(id)
	if err != nil {
		return fmt.Errorf("fetch thumbnail before destroy: %w", err)
	}
	if err := m.thumbnails.Destroy(id); err != nil {
		return fmt.Errorf("destroy thumbnail row: %w", err)
	}
	if t.IsOwned {
		if err := os.Remove(t.Mrl); err != nil && !os.IsNotExist(err) {
			m.log.Warn().Err(err).Str("mrl", t.Mrl).Msg("failed to remove owned thumbnail file")
		}
	}
	return nil
}

// ThumbnailFor returns the thumbnail id linked to entity at the given size,
// or mlerrors.ErrNotFound if none is set.
func (m *Manager) ThumbnailFor(entityID int64, entityType model.EntityType, size model.ThumbnailSizeType) (int64, error) {
	return m.linking.Fetch(entityID, entityType, size)
}

// FlushUserProvidedThumbnails removes every linking row whose thumbnail has
// Origin == UserProvided and garbage-collects the thumbnails that fall to
// zero referrers as a result, per spec.md §4.6.
func (m *Manager) FlushUserProvidedThumbnails() error {
	linkings, err := m.linking.UserProvidedLinkings()
	if err != nil {
		return fmt.Errorf("list user-provided linkings: %w", err)
	}
	seen := make(map[int64]bool)
	for _, l := range linkings {
		if err := m.linking.Unlink(l.EntityID, l.EntityType, l.SizeType); err != nil {
			return fmt.Errorf("unlink user-provided thumbnail: %w", err)
		}
		seen[l.ThumbnailID] = true
	}
	for id := range seen {
		count, err := m.linking.CountReferrers(id)
		if err != nil {
			return fmt.Errorf("count referrers after flush: %w", err)
		}
		if count == 0 {
			if err := m.destroy(id); err != nil {
				return fmt.Errorf("destroy orphaned thumbnail: %w", err)
			}
		}
	}
	return nil
}
