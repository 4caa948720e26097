// Package composition manages the ordered reference rows that make up a
// resume and resolves them into a render-ready view. A resume never copies
// library content: each reference row binds the resume to one live library
// row with a position, and bullet overrides may locally shadow display text.
package composition

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"resumeadvisor/internal/apperr"
	"resumeadvisor/internal/database"
)

// RefKind names the kinds of composition rows that carry a position.
type RefKind string

const (
	RefKindSection    RefKind = "section"
	RefKindExperience RefKind = "experience"
	RefKindEducation  RefKind = "education"
	RefKindProject    RefKind = "project"
	RefKindSkill      RefKind = "skill"
)

// Valid reports whether the kind names a known composition row table.
func (k RefKind) Valid() bool {
	switch k {
	case RefKindSection, RefKindExperience, RefKindEducation, RefKindProject, RefKindSkill:
		return true
	}
	return false
}

// Engine 负责简历组合层的全部写操作与解析。
//
// Every mutation runs in one transaction with the resume row locked FOR
// UPDATE, so concurrent attach/reorder calls on the same resume serialize and
// can never interleave into an inconsistent ordering.
type Engine struct {
	db *gorm.DB
}

// NewEngine 构造 Engine。
func NewEngine(db *gorm.DB) *Engine {
	return &Engine{db: db}
}

// ---- resume shell ----

// SetPrimary marks one resume primary and clears the flag on the user's other
// resumes in the same transaction, keeping at most one primary per user.
func (e *Engine) SetPrimary(ctx context.Context, userID, resumeID uint) error {
	return e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := lockResume(tx, userID, resumeID); err != nil {
			return err
		}
		if err := tx.Model(&database.Resume{}).
			Where("user_id = ? AND id <> ?", userID, resumeID).
			Update("is_primary", false).Error; err != nil {
			return fmt.Errorf("clear primary flags: %w", err)
		}
		if err := tx.Model(&database.Resume{}).
			Where("id = ?", resumeID).
			Update("is_primary", true).Error; err != nil {
			return fmt.Errorf("set primary flag: %w", err)
		}
		return nil
	})
}

// ---- sections ----

// AddSection inserts a top-level section at the given position.
func (e *Engine) AddSection(ctx context.Context, userID, resumeID uint, sectionType, titleOverride string, position int) (uint, error) {
	var id uint
	err := e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := lockResume(tx, userID, resumeID); err != nil {
			return err
		}
		if err := positionFree(tx, &database.ResumeSection{}, resumeID, position); err != nil {
			return err
		}
		section := database.ResumeSection{
			UserID:        userID,
			ResumeID:      resumeID,
			Type:          sectionType,
			TitleOverride: titleOverride,
			Position:      position,
		}
		if err := tx.Create(&section).Error; err != nil {
			return fmt.Errorf("create section: %w", err)
		}
		id = section.ID
		return nil
	})
	return id, err
}

// ---- attach ----

// AttachExperience binds a library experience to a resume at a position.
// Fails with a cross-owner error when the experience belongs to another user
// and with a conflict error when the position is already occupied; positions
// are never silently renumbered.
func (e *Engine) AttachExperience(ctx context.Context, userID, resumeID, experienceID uint, position int) (uint, error) {
	var id uint
	err := e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		resume, err := lockResume(tx, userID, resumeID)
		if err != nil {
			return err
		}
		var exp database.LibraryExperience
		if err := tx.First(&exp, experienceID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperr.NotFound("experience not found")
			}
			return fmt.Errorf("load experience: %w", err)
		}
		if exp.UserID != resume.UserID {
			return apperr.CrossOwner("experience belongs to another user")
		}
		if err := positionFree(tx, &database.ResumeExperienceRef{}, resumeID, position); err != nil {
			return err
		}
		ref := database.ResumeExperienceRef{
			UserID:              userID,
			ResumeID:            resumeID,
			LibraryExperienceID: experienceID,
			Position:            position,
		}
		if err := tx.Create(&ref).Error; err != nil {
			return fmt.Errorf("create experience ref: %w", err)
		}
		id = ref.ID
		return nil
	})
	return id, err
}

// AttachEducation binds a library education entry to a resume at a position.
func (e *Engine) AttachEducation(ctx context.Context, userID, resumeID, educationID uint, position int) (uint, error) {
	var id uint
	err := e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		resume, err := lockResume(tx, userID, resumeID)
		if err != nil {
			return err
		}
		var edu database.LibraryEducation
		if err := tx.First(&edu, educationID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperr.NotFound("education entry not found")
			}
			return fmt.Errorf("load education: %w", err)
		}
		if edu.UserID != resume.UserID {
			return apperr.CrossOwner("education entry belongs to another user")
		}
		if err := positionFree(tx, &database.ResumeEducationRef{}, resumeID, position); err != nil {
			return err
		}
		ref := database.ResumeEducationRef{
			UserID:             userID,
			ResumeID:           resumeID,
			LibraryEducationID: educationID,
			Position:           position,
		}
		if err := tx.Create(&ref).Error; err != nil {
			return fmt.Errorf("create education ref: %w", err)
		}
		id = ref.ID
		return nil
	})
	return id, err
}

// AttachProject binds a library project to a resume at a position.
func (e *Engine) AttachProject(ctx context.Context, userID, resumeID, projectID uint, position int) (uint, error) {
	var id uint
	err := e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		resume, err := lockResume(tx, userID, resumeID)
		if err != nil {
			return err
		}
		var proj database.LibraryProject
		if err := tx.First(&proj, projectID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperr.NotFound("project not found")
			}
			return fmt.Errorf("load project: %w", err)
		}
		if proj.UserID != resume.UserID {
			return apperr.CrossOwner("project belongs to another user")
		}
		if err := positionFree(tx, &database.ResumeProjectRef{}, resumeID, position); err != nil {
			return err
		}
		ref := database.ResumeProjectRef{
			UserID:           userID,
			ResumeID:         resumeID,
			LibraryProjectID: projectID,
			Position:         position,
		}
		if err := tx.Create(&ref).Error; err != nil {
			return fmt.Errorf("create project ref: %w", err)
		}
		id = ref.ID
		return nil
	})
	return id, err
}

// AttachSkill binds a library skill to a resume at a position, with a
// resume-local proficiency.
func (e *Engine) AttachSkill(ctx context.Context, userID, resumeID, skillID uint, position int, proficiency string) (uint, error) {
	var id uint
	err := e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		resume, err := lockResume(tx, userID, resumeID)
		if err != nil {
			return err
		}
		var skill database.LibrarySkill
		if err := tx.First(&skill, skillID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperr.NotFound("skill not found")
			}
			return fmt.Errorf("load skill: %w", err)
		}
		if skill.UserID != resume.UserID {
			return apperr.CrossOwner("skill belongs to another user")
		}
		if err := positionFree(tx, &database.ResumeSkillRef{}, resumeID, position); err != nil {
			return err
		}
		ref := database.ResumeSkillRef{
			UserID:         userID,
			ResumeID:       resumeID,
			LibrarySkillID: skillID,
			Position:       position,
			Proficiency:    proficiency,
		}
		if err := tx.Create(&ref).Error; err != nil {
			return fmt.Errorf("create skill ref: %w", err)
		}
		id = ref.ID
		return nil
	})
	return id, err
}

// ---- reorder ----

// Reorder moves one composition row to a new position, shifting the rows in
// between. The whole move happens inside a single transaction with the resume
// row locked, so either all affected rows move or none do. Moving a row onto
// its current position is a no-op.
func (e *Engine) Reorder(ctx context.Context, userID, resumeID uint, kind RefKind, refID uint, newPosition int) error {
	if !kind.Valid() {
		return apperr.Validation("unknown reference kind")
	}
	return e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := lockResume(tx, userID, resumeID); err != nil {
			return err
		}

		model := kindModel(kind)
		var row struct {
			ID       uint
			Position int
		}
		if err := tx.Model(model).
			Where("id = ? AND resume_id = ?", refID, resumeID).
			Select("id", "position").
			First(&row).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperr.NotFound("reference not found")
			}
			return fmt.Errorf("load reference: %w", err)
		}

		oldPosition := row.Position
		if oldPosition == newPosition {
			return nil
		}

		// Shift the interval between old and new position by one, then
		// drop the moved row into the freed slot.
		var shift *gorm.DB
		if newPosition < oldPosition {
			shift = tx.Model(model).
				Where("resume_id = ? AND position >= ? AND position < ?", resumeID, newPosition, oldPosition).
				Update("position", gorm.Expr("position + 1"))
		} else {
			shift = tx.Model(model).
				Where("resume_id = ? AND position > ? AND position <= ?", resumeID, oldPosition, newPosition).
				Update("position", gorm.Expr("position - 1"))
		}
		if shift.Error != nil {
			return fmt.Errorf("shift positions: %w", shift.Error)
		}

		if err := tx.Model(model).
			Where("id = ?", refID).
			Update("position", newPosition).Error; err != nil {
			return fmt.Errorf("move reference: %w", err)
		}
		return nil
	})
}

// ---- bullet overrides ----

// SetExperienceBulletOverride binds a library bullet under a resume
// experience ref. A nil or empty text keeps the canonical library text; a
// non-empty text shadows it for this resume only. Re-binding the same bullet
// updates the existing override row.
func (e *Engine) SetExperienceBulletOverride(ctx context.Context, userID, refID, bulletID uint, text *string, position int) (uint, error) {
	var id uint
	err := e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var ref database.ResumeExperienceRef
		if err := tx.First(&ref, refID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperr.NotFound("reference not found")
			}
			return fmt.Errorf("load reference: %w", err)
		}
		if ref.UserID != userID {
			return apperr.NotFound("reference not found")
		}
		if _, err := lockResume(tx, userID, ref.ResumeID); err != nil {
			return err
		}

		var bullet database.ExperienceBullet
		if err := tx.First(&bullet, bulletID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperr.NotFound("bullet not found")
			}
			return fmt.Errorf("load bullet: %w", err)
		}
		if bullet.LibraryExperienceID != ref.LibraryExperienceID {
			return apperr.Validation("bullet does not belong to the referenced experience")
		}

		var existing database.ExperienceBulletOverride
		err := tx.Where("ref_id = ? AND bullet_id = ?", refID, bulletID).First(&existing).Error
		switch {
		case err == nil:
			if err := overridePositionFree(tx, &database.ExperienceBulletOverride{}, refID, position, existing.ID); err != nil {
				return err
			}
			if err := tx.Model(&existing).
				Updates(map[string]any{"text": text, "position": position}).Error; err != nil {
				return fmt.Errorf("update override: %w", err)
			}
			id = existing.ID
			return nil
		case errors.Is(err, gorm.ErrRecordNotFound):
			if err := overridePositionFree(tx, &database.ExperienceBulletOverride{}, refID, position, 0); err != nil {
				return err
			}
			override := database.ExperienceBulletOverride{
				RefID:    refID,
				BulletID: bulletID,
				Position: position,
				Text:     text,
			}
			if err := tx.Create(&override).Error; err != nil {
				return fmt.Errorf("create override: %w", err)
			}
			id = override.ID
			return nil
		default:
			return fmt.Errorf("lookup override: %w", err)
		}
	})
	return id, err
}

// SetProjectBulletOverride is the project-side counterpart.
func (e *Engine) SetProjectBulletOverride(ctx context.Context, userID, refID, bulletID uint, text *string, position int) (uint, error) {
	var id uint
	err := e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var ref database.ResumeProjectRef
		if err := tx.First(&ref, refID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperr.NotFound("reference not found")
			}
			return fmt.Errorf("load reference: %w", err)
		}
		if ref.UserID != userID {
			return apperr.NotFound("reference not found")
		}
		if _, err := lockResume(tx, userID, ref.ResumeID); err != nil {
			return err
		}

		var bullet database.ProjectBullet
		if err := tx.First(&bullet, bulletID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperr.NotFound("bullet not found")
			}
			return fmt.Errorf("load bullet: %w", err)
		}
		if bullet.LibraryProjectID != ref.LibraryProjectID {
			return apperr.Validation("bullet does not belong to the referenced project")
		}

		var existing database.ProjectBulletOverride
		err := tx.Where("ref_id = ? AND bullet_id = ?", refID, bulletID).First(&existing).Error
		switch {
		case err == nil:
			if err := overridePositionFree(tx, &database.ProjectBulletOverride{}, refID, position, existing.ID); err != nil {
				return err
			}
			if err := tx.Model(&existing).
				Updates(map[string]any{"text": text, "position": position}).Error; err != nil {
				return fmt.Errorf("update override: %w", err)
			}
			id = existing.ID
			return nil
		case errors.Is(err, gorm.ErrRecordNotFound):
			if err := overridePositionFree(tx, &database.ProjectBulletOverride{}, refID, position, 0); err != nil {
				return err
			}
			override := database.ProjectBulletOverride{
				RefID:    refID,
				BulletID: bulletID,
				Position: position,
				Text:     text,
			}
			if err := tx.Create(&override).Error; err != nil {
				return fmt.Errorf("create override: %w", err)
			}
			id = override.ID
			return nil
		default:
			return fmt.Errorf("lookup override: %w", err)
		}
	})
	return id, err
}

// ---- detach ----

// Detach removes a composition row. Experience and project refs cascade to
// their bullet overrides. The referenced library rows are never touched.
func (e *Engine) Detach(ctx context.Context, userID uint, kind RefKind, refID uint) error {
	if !kind.Valid() {
		return apperr.Validation("unknown reference kind")
	}
	return e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		model := kindModel(kind)
		var row struct {
			ID       uint
			UserID   uint
			ResumeID uint
		}
		if err := tx.Model(model).
			Where("id = ?", refID).
			Select("id", "user_id", "resume_id").
			First(&row).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperr.NotFound("reference not found")
			}
			return fmt.Errorf("load reference: %w", err)
		}
		if row.UserID != userID {
			return apperr.NotFound("reference not found")
		}
		if _, err := lockResume(tx, userID, row.ResumeID); err != nil {
			return err
		}

		switch kind {
		case RefKindExperience:
			if err := tx.Where("ref_id = ?", refID).
				Delete(&database.ExperienceBulletOverride{}).Error; err != nil {
				return fmt.Errorf("delete overrides: %w", err)
			}
		case RefKindProject:
			if err := tx.Where("ref_id = ?", refID).
				Delete(&database.ProjectBulletOverride{}).Error; err != nil {
				return fmt.Errorf("delete overrides: %w", err)
			}
		}

		if err := tx.Delete(model, refID).Error; err != nil {
			return fmt.Errorf("delete reference: %w", err)
		}
		return nil
	})
}

// ---- summary & theme ----

// SetSummary upserts the resume's single free-form summary.
func (e *Engine) SetSummary(ctx context.Context, userID, resumeID uint, text string) error {
	return e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := lockResume(tx, userID, resumeID); err != nil {
			return err
		}
		summary := database.ResumeSummary{ResumeID: resumeID, Text: text}
		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "resume_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"text", "updated_at"}),
		}).Create(&summary).Error; err != nil {
			return fmt.Errorf("upsert summary: %w", err)
		}
		return nil
	})
}

// SetTheme upserts the resume's single theme settings row.
func (e *Engine) SetTheme(ctx context.Context, userID, resumeID uint, options datatypes.JSON) error {
	return e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := lockResume(tx, userID, resumeID); err != nil {
			return err
		}
		theme := database.ResumeThemeSettings{ResumeID: resumeID, Options: options}
		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "resume_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"options", "updated_at"}),
		}).Create(&theme).Error; err != nil {
			return fmt.Errorf("upsert theme: %w", err)
		}
		return nil
	})
}

// ---- helpers ----

// lockResume loads an owned resume FOR UPDATE so mutations on the same resume
// serialize. SQLite (tests) ignores the locking clause; its writer lock gives
// the same guarantee.
func lockResume(tx *gorm.DB, userID, resumeID uint) (*database.Resume, error) {
	var resume database.Resume
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ? AND user_id = ?", resumeID, userID).
		First(&resume).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("resume not found")
		}
		return nil, fmt.Errorf("lock resume: %w", err)
	}
	return &resume, nil
}

func positionFree(tx *gorm.DB, model any, resumeID uint, position int) error {
	var count int64
	if err := tx.Model(model).
		Where("resume_id = ? AND position = ?", resumeID, position).
		Count(&count).Error; err != nil {
		return fmt.Errorf("check position: %w", err)
	}
	if count > 0 {
		return apperr.Conflict(fmt.Sprintf("position %d is already occupied", position))
	}
	return nil
}

func overridePositionFree(tx *gorm.DB, model any, refID uint, position int, excludeID uint) error {
	q := tx.Model(model).Where("ref_id = ? AND position = ?", refID, position)
	if excludeID != 0 {
		q = q.Where("id <> ?", excludeID)
	}
	var count int64
	if err := q.Count(&count).Error; err != nil {
		return fmt.Errorf("check override position: %w", err)
	}
	if count > 0 {
		return apperr.Conflict(fmt.Sprintf("override position %d is already occupied", position))
	}
	return nil
}

func kindModel(kind RefKind) any {
	switch kind {
	case RefKindSection:
		return &database.ResumeSection{}
	case RefKindExperience:
		return &database.ResumeExperienceRef{}
	case RefKindEducation:
		return &database.ResumeEducationRef{}
	case RefKindProject:
		return &database.ResumeProjectRef{}
	default:
		return &database.ResumeSkillRef{}
	}
}
