// Package library manages the user's reusable content: experiences,
// education, projects, and skills. Library rows are edited directly, outside
// of any resume; resumes only point at them through composition rows.
package library

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"resumeadvisor/internal/apperr"
	"resumeadvisor/internal/database"
)

// Store persists library rows and guards their deletion. A row that is still
// referenced by any resume composition row cannot be deleted; the delete is
// rejected with a conflict error rather than cascading. One policy everywhere.
type Store struct {
	db *gorm.DB
}

// NewStore 构造 Store。
func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// ---- Experiences ----

// CreateExperience persists a new experience owned by userID.
func (s *Store) CreateExperience(ctx context.Context, exp *database.LibraryExperience) error {
	if err := s.db.WithContext(ctx).Create(exp).Error; err != nil {
		return fmt.Errorf("create experience: %w", err)
	}
	return nil
}

// UpdateExperience applies field updates to an owned experience.
func (s *Store) UpdateExperience(ctx context.Context, userID, id uint, updates map[string]any) error {
	return s.updateOwned(ctx, &database.LibraryExperience{}, userID, id, updates, "experience")
}

// DeleteExperience removes an experience and its bullets. Fails with a
// conflict error while any resume still references the experience or one of
// its bullets.
func (s *Store) DeleteExperience(ctx context.Context, userID, id uint) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := ownedExists(tx, &database.LibraryExperience{}, userID, id, "experience"); err != nil {
			return err
		}

		var refs int64
		if err := tx.Model(&database.ResumeExperienceRef{}).
			Where("library_experience_id = ?", id).
			Count(&refs).Error; err != nil {
			return fmt.Errorf("count experience refs: %w", err)
		}
		if refs > 0 {
			return apperr.Conflict("experience is referenced by a resume")
		}

		if err := tx.Where("library_experience_id = ?", id).
			Delete(&database.ExperienceBullet{}).Error; err != nil {
			return fmt.Errorf("delete experience bullets: %w", err)
		}
		if err := tx.Where("kind = ? AND item_id = ?", database.TagKindExperience, id).
			Delete(&database.SkillTag{}).Error; err != nil {
			return fmt.Errorf("delete skill tags: %w", err)
		}
		if err := tx.Delete(&database.LibraryExperience{}, id).Error; err != nil {
			return fmt.Errorf("delete experience: %w", err)
		}
		return nil
	})
}

// ListExperiences returns the user's experiences with bullets, ordered by
// creation.
func (s *Store) ListExperiences(ctx context.Context, userID uint) ([]database.LibraryExperience, error) {
	var out []database.LibraryExperience
	err := s.db.WithContext(ctx).
		Preload("Bullets", func(db *gorm.DB) *gorm.DB { return db.Order("position ASC") }).
		Where("user_id = ?", userID).
		Order("created_at ASC").
		Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("list experiences: %w", err)
	}
	return out, nil
}

// AddExperienceBullet appends a bullet to an owned experience.
func (s *Store) AddExperienceBullet(ctx context.Context, userID, expID uint, position int, text string) (*database.ExperienceBullet, error) {
	var bullet database.ExperienceBullet
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := ownedExists(tx, &database.LibraryExperience{}, userID, expID, "experience"); err != nil {
			return err
		}
		bullet = database.ExperienceBullet{
			LibraryExperienceID: expID,
			Position:            position,
			Text:                text,
		}
		if err := tx.Create(&bullet).Error; err != nil {
			return fmt.Errorf("create bullet: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &bullet, nil
}

// UpdateExperienceBullet rewrites the canonical text of a bullet. Every
// resume that does not override the bullet picks up the new text on its next
// resolve.
func (s *Store) UpdateExperienceBullet(ctx context.Context, userID, bulletID uint, text string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		exp, err := experienceOfBullet(tx, bulletID)
		if err != nil {
			return err
		}
		if exp.UserID != userID {
			return apperr.NotFound("bullet not found")
		}
		if err := tx.Model(&database.ExperienceBullet{}).
			Where("id = ?", bulletID).
			Update("text", text).Error; err != nil {
			return fmt.Errorf("update bullet: %w", err)
		}
		return nil
	})
}

// DeleteExperienceBullet removes a bullet unless an override still points at
// it.
func (s *Store) DeleteExperienceBullet(ctx context.Context, userID, bulletID uint) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		exp, err := experienceOfBullet(tx, bulletID)
		if err != nil {
			return err
		}
		if exp.UserID != userID {
			return apperr.NotFound("bullet not found")
		}

		var overrides int64
		if err := tx.Model(&database.ExperienceBulletOverride{}).
			Where("bullet_id = ?", bulletID).
			Count(&overrides).Error; err != nil {
			return fmt.Errorf("count bullet overrides: %w", err)
		}
		if overrides > 0 {
			return apperr.Conflict("bullet is referenced by a resume override")
		}

		if err := tx.Delete(&database.ExperienceBullet{}, bulletID).Error; err != nil {
			return fmt.Errorf("delete bullet: %w", err)
		}
		return nil
	})
}

// ---- Education ----

// CreateEducation persists a new education entry.
func (s *Store) CreateEducation(ctx context.Context, edu *database.LibraryEducation) error {
	if err := s.db.WithContext(ctx).Create(edu).Error; err != nil {
		return fmt.Errorf("create education: %w", err)
	}
	return nil
}

// UpdateEducation applies field updates to an owned education entry.
func (s *Store) UpdateEducation(ctx context.Context, userID, id uint, updates map[string]any) error {
	return s.updateOwned(ctx, &database.LibraryEducation{}, userID, id, updates, "education")
}

// DeleteEducation removes an education entry unless a resume references it.
func (s *Store) DeleteEducation(ctx context.Context, userID, id uint) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := ownedExists(tx, &database.LibraryEducation{}, userID, id, "education"); err != nil {
			return err
		}
		var refs int64
		if err := tx.Model(&database.ResumeEducationRef{}).
			Where("library_education_id = ?", id).
			Count(&refs).Error; err != nil {
			return fmt.Errorf("count education refs: %w", err)
		}
		if refs > 0 {
			return apperr.Conflict("education entry is referenced by a resume")
		}
		if err := tx.Delete(&database.LibraryEducation{}, id).Error; err != nil {
			return fmt.Errorf("delete education: %w", err)
		}
		return nil
	})
}

// ListEducation returns the user's education entries, ordered by creation.
func (s *Store) ListEducation(ctx context.Context, userID uint) ([]database.LibraryEducation, error) {
	var out []database.LibraryEducation
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at ASC").
		Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("list education: %w", err)
	}
	return out, nil
}

// ---- Projects ----

// CreateProject persists a new project.
func (s *Store) CreateProject(ctx context.Context, proj *database.LibraryProject) error {
	if err := s.db.WithContext(ctx).Create(proj).Error; err != nil {
		return fmt.Errorf("create project: %w", err)
	}
	return nil
}

// UpdateProject applies field updates to an owned project.
func (s *Store) UpdateProject(ctx context.Context, userID, id uint, updates map[string]any) error {
	return s.updateOwned(ctx, &database.LibraryProject{}, userID, id, updates, "project")
}

// DeleteProject removes a project and its bullets unless a resume references
// the project or one of its bullets.
func (s *Store) DeleteProject(ctx context.Context, userID, id uint) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := ownedExists(tx, &database.LibraryProject{}, userID, id, "project"); err != nil {
			return err
		}
		var refs int64
		if err := tx.Model(&database.ResumeProjectRef{}).
			Where("library_project_id = ?", id).
			Count(&refs).Error; err != nil {
			return fmt.Errorf("count project refs: %w", err)
		}
		if refs > 0 {
			return apperr.Conflict("project is referenced by a resume")
		}
		if err := tx.Where("library_project_id = ?", id).
			Delete(&database.ProjectBullet{}).Error; err != nil {
			return fmt.Errorf("delete project bullets: %w", err)
		}
		if err := tx.Where("kind = ? AND item_id = ?", database.TagKindProject, id).
			Delete(&database.SkillTag{}).Error; err != nil {
			return fmt.Errorf("delete skill tags: %w", err)
		}
		if err := tx.Delete(&database.LibraryProject{}, id).Error; err != nil {
			return fmt.Errorf("delete project: %w", err)
		}
		return nil
	})
}

// ListProjects returns the user's projects with bullets, ordered by creation.
func (s *Store) ListProjects(ctx context.Context, userID uint) ([]database.LibraryProject, error) {
	var out []database.LibraryProject
	err := s.db.WithContext(ctx).
		Preload("Bullets", func(db *gorm.DB) *gorm.DB { return db.Order("position ASC") }).
		Where("user_id = ?", userID).
		Order("created_at ASC").
		Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	return out, nil
}

// AddProjectBullet appends a bullet to an owned project.
func (s *Store) AddProjectBullet(ctx context.Context, userID, projID uint, position int, text string) (*database.ProjectBullet, error) {
	var bullet database.ProjectBullet
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := ownedExists(tx, &database.LibraryProject{}, userID, projID, "project"); err != nil {
			return err
		}
		bullet = database.ProjectBullet{
			LibraryProjectID: projID,
			Position:         position,
			Text:             text,
		}
		if err := tx.Create(&bullet).Error; err != nil {
			return fmt.Errorf("create bullet: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &bullet, nil
}

// DeleteProjectBullet removes a bullet unless an override still points at it.
func (s *Store) DeleteProjectBullet(ctx context.Context, userID, bulletID uint) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var bullet database.ProjectBullet
		if err := tx.First(&bullet, bulletID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperr.NotFound("bullet not found")
			}
			return fmt.Errorf("load bullet: %w", err)
		}
		var proj database.LibraryProject
		if err := tx.First(&proj, bullet.LibraryProjectID).Error; err != nil {
			return fmt.Errorf("load project: %w", err)
		}
		if proj.UserID != userID {
			return apperr.NotFound("bullet not found")
		}

		var overrides int64
		if err := tx.Model(&database.ProjectBulletOverride{}).
			Where("bullet_id = ?", bulletID).
			Count(&overrides).Error; err != nil {
			return fmt.Errorf("count bullet overrides: %w", err)
		}
		if overrides > 0 {
			return apperr.Conflict("bullet is referenced by a resume override")
		}

		if err := tx.Delete(&database.ProjectBullet{}, bulletID).Error; err != nil {
			return fmt.Errorf("delete bullet: %w", err)
		}
		return nil
	})
}

// ---- Skills ----

// CreateSkill persists a new skill.
func (s *Store) CreateSkill(ctx context.Context, skill *database.LibrarySkill) error {
	if err := s.db.WithContext(ctx).Create(skill).Error; err != nil {
		return fmt.Errorf("create skill: %w", err)
	}
	return nil
}

// UpdateSkill applies field updates to an owned skill.
func (s *Store) UpdateSkill(ctx context.Context, userID, id uint, updates map[string]any) error {
	return s.updateOwned(ctx, &database.LibrarySkill{}, userID, id, updates, "skill")
}

// DeleteSkill removes a skill and its tags unless a resume references it.
func (s *Store) DeleteSkill(ctx context.Context, userID, id uint) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := ownedExists(tx, &database.LibrarySkill{}, userID, id, "skill"); err != nil {
			return err
		}
		var refs int64
		if err := tx.Model(&database.ResumeSkillRef{}).
			Where("library_skill_id = ?", id).
			Count(&refs).Error; err != nil {
			return fmt.Errorf("count skill refs: %w", err)
		}
		if refs > 0 {
			return apperr.Conflict("skill is referenced by a resume")
		}
		if err := tx.Where("skill_id = ?", id).Delete(&database.SkillTag{}).Error; err != nil {
			return fmt.Errorf("delete skill tags: %w", err)
		}
		if err := tx.Delete(&database.LibrarySkill{}, id).Error; err != nil {
			return fmt.Errorf("delete skill: %w", err)
		}
		return nil
	})
}

// ListSkills returns the user's skills, ordered by creation.
func (s *Store) ListSkills(ctx context.Context, userID uint) ([]database.LibrarySkill, error) {
	var out []database.LibrarySkill
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at ASC").
		Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("list skills: %w", err)
	}
	return out, nil
}

// TagSkill attaches a skill onto an owned experience or project. The kind is
// a closed enum; the tagged item must exist and share the skill's owner.
func (s *Store) TagSkill(ctx context.Context, userID, skillID uint, kind database.TagKind, itemID uint) (*database.SkillTag, error) {
	if !kind.Valid() {
		return nil, apperr.Validation("unknown tag kind")
	}

	var tag database.SkillTag
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := ownedExists(tx, &database.LibrarySkill{}, userID, skillID, "skill"); err != nil {
			return err
		}
		switch kind {
		case database.TagKindExperience:
			if err := ownedExists(tx, &database.LibraryExperience{}, userID, itemID, "experience"); err != nil {
				return err
			}
		case database.TagKindProject:
			if err := ownedExists(tx, &database.LibraryProject{}, userID, itemID, "project"); err != nil {
				return err
			}
		}

		tag = database.SkillTag{
			UserID:  userID,
			SkillID: skillID,
			Kind:    kind,
			ItemID:  itemID,
		}
		if err := tx.Create(&tag).Error; err != nil {
			return fmt.Errorf("create skill tag: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &tag, nil
}

// UntagSkill removes a tag owned by userID.
func (s *Store) UntagSkill(ctx context.Context, userID, tagID uint) error {
	res := s.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", tagID, userID).
		Delete(&database.SkillTag{})
	if res.Error != nil {
		return fmt.Errorf("delete skill tag: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return apperr.NotFound("tag not found")
	}
	return nil
}

// ---- helpers ----

func (s *Store) updateOwned(ctx context.Context, model any, userID, id uint, updates map[string]any, label string) error {
	if len(updates) == 0 {
		return apperr.Validation("no fields to update")
	}
	res := s.db.WithContext(ctx).Model(model).
		Where("id = ? AND user_id = ?", id, userID).
		Updates(updates)
	if res.Error != nil {
		return fmt.Errorf("update %s: %w", label, res.Error)
	}
	if res.RowsAffected == 0 {
		return apperr.NotFound(label + " not found")
	}
	return nil
}

func ownedExists(tx *gorm.DB, model any, userID, id uint, label string) error {
	var count int64
	if err := tx.Model(model).
		Where("id = ? AND user_id = ?", id, userID).
		Count(&count).Error; err != nil {
		return fmt.Errorf("lookup %s: %w", label, err)
	}
	if count == 0 {
		return apperr.NotFound(label + " not found")
	}
	return nil
}

func experienceOfBullet(tx *gorm.DB, bulletID uint) (*database.LibraryExperience, error) {
	var bullet database.ExperienceBullet
	if err := tx.First(&bullet, bulletID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("bullet not found")
		}
		return nil, fmt.Errorf("load bullet: %w", err)
	}
	var exp database.LibraryExperience
	if err := tx.First(&exp, bullet.LibraryExperienceID).Error; err != nil {
		return nil, fmt.Errorf("load experience: %w", err)
	}
	return &exp, nil
}
