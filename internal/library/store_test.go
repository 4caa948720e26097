package library

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"resumeadvisor/internal/apperr"
	"resumeadvisor/internal/database"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(database.AllModels()...); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func seedUser(t *testing.T, db *gorm.DB, email string) uint {
	t.Helper()
	user := database.User{Email: email, PasswordHash: "x"}
	if err := db.Create(&user).Error; err != nil {
		t.Fatalf("seed user: %v", err)
	}
	return user.ID
}

func TestDeleteExperienceRejectedWhileReferenced(t *testing.T) {
	db := newTestDB(t)
	store := NewStore(db)
	ctx := context.Background()

	userID := seedUser(t, db, "ada@example.com")
	exp := database.LibraryExperience{UserID: userID, Company: "Acme Corp", Title: "Engineer"}
	if err := store.CreateExperience(ctx, &exp); err != nil {
		t.Fatalf("create experience: %v", err)
	}

	resume := database.Resume{UserID: userID, Title: "Backend"}
	if err := db.Create(&resume).Error; err != nil {
		t.Fatalf("seed resume: %v", err)
	}
	ref := database.ResumeExperienceRef{UserID: userID, ResumeID: resume.ID, LibraryExperienceID: exp.ID, Position: 0}
	if err := db.Create(&ref).Error; err != nil {
		t.Fatalf("seed ref: %v", err)
	}

	err := store.DeleteExperience(ctx, userID, exp.ID)
	if !apperr.Is(err, apperr.KindConflict) {
		t.Fatalf("delete referenced experience: err = %v, want conflict kind", err)
	}

	// Detach first, then deletion goes through and takes the bullets along.
	if _, err := store.AddExperienceBullet(ctx, userID, exp.ID, 0, "Did things"); err != nil {
		t.Fatalf("add bullet: %v", err)
	}
	if err := db.Delete(&ref).Error; err != nil {
		t.Fatalf("remove ref: %v", err)
	}
	if err := store.DeleteExperience(ctx, userID, exp.ID); err != nil {
		t.Fatalf("delete after detach: %v", err)
	}
	var bullets int64
	if err := db.Model(&database.ExperienceBullet{}).
		Where("library_experience_id = ?", exp.ID).
		Count(&bullets).Error; err != nil {
		t.Fatalf("count bullets: %v", err)
	}
	if bullets != 0 {
		t.Errorf("bullets after delete = %d, want 0", bullets)
	}
}

func TestDeleteBulletRejectedWhileOverridden(t *testing.T) {
	db := newTestDB(t)
	store := NewStore(db)
	ctx := context.Background()

	userID := seedUser(t, db, "ada@example.com")
	exp := database.LibraryExperience{UserID: userID, Company: "Acme Corp"}
	if err := store.CreateExperience(ctx, &exp); err != nil {
		t.Fatalf("create experience: %v", err)
	}
	bullet, err := store.AddExperienceBullet(ctx, userID, exp.ID, 0, "Did things")
	if err != nil {
		t.Fatalf("add bullet: %v", err)
	}

	resume := database.Resume{UserID: userID, Title: "Backend"}
	if err := db.Create(&resume).Error; err != nil {
		t.Fatalf("seed resume: %v", err)
	}
	ref := database.ResumeExperienceRef{UserID: userID, ResumeID: resume.ID, LibraryExperienceID: exp.ID, Position: 0}
	if err := db.Create(&ref).Error; err != nil {
		t.Fatalf("seed ref: %v", err)
	}
	text := "Rephrased"
	override := database.ExperienceBulletOverride{RefID: ref.ID, BulletID: bullet.ID, Position: 0, Text: &text}
	if err := db.Create(&override).Error; err != nil {
		t.Fatalf("seed override: %v", err)
	}

	err = store.DeleteExperienceBullet(ctx, userID, bullet.ID)
	if !apperr.Is(err, apperr.KindConflict) {
		t.Fatalf("delete overridden bullet: err = %v, want conflict kind", err)
	}

	if err := db.Delete(&override).Error; err != nil {
		t.Fatalf("remove override: %v", err)
	}
	if err := store.DeleteExperienceBullet(ctx, userID, bullet.ID); err != nil {
		t.Fatalf("delete after override removed: %v", err)
	}
}

func TestDeleteSkillRejectedWhileReferenced(t *testing.T) {
	db := newTestDB(t)
	store := NewStore(db)
	ctx := context.Background()

	userID := seedUser(t, db, "ada@example.com")
	skill := database.LibrarySkill{UserID: userID, Name: "Go"}
	if err := store.CreateSkill(ctx, &skill); err != nil {
		t.Fatalf("create skill: %v", err)
	}
	resume := database.Resume{UserID: userID, Title: "Backend"}
	if err := db.Create(&resume).Error; err != nil {
		t.Fatalf("seed resume: %v", err)
	}
	ref := database.ResumeSkillRef{UserID: userID, ResumeID: resume.ID, LibrarySkillID: skill.ID, Position: 0}
	if err := db.Create(&ref).Error; err != nil {
		t.Fatalf("seed ref: %v", err)
	}

	err := store.DeleteSkill(ctx, userID, skill.ID)
	if !apperr.Is(err, apperr.KindConflict) {
		t.Fatalf("delete referenced skill: err = %v, want conflict kind", err)
	}
}

func TestTagSkillValidatesKindAndOwnership(t *testing.T) {
	db := newTestDB(t)
	store := NewStore(db)
	ctx := context.Background()

	userID := seedUser(t, db, "ada@example.com")
	other := seedUser(t, db, "bob@example.com")

	skill := database.LibrarySkill{UserID: userID, Name: "Go"}
	if err := store.CreateSkill(ctx, &skill); err != nil {
		t.Fatalf("create skill: %v", err)
	}
	mine := database.LibraryExperience{UserID: userID, Company: "Acme Corp"}
	if err := db.Create(&mine).Error; err != nil {
		t.Fatalf("seed experience: %v", err)
	}
	theirs := database.LibraryExperience{UserID: other, Company: "Globex"}
	if err := db.Create(&theirs).Error; err != nil {
		t.Fatalf("seed foreign experience: %v", err)
	}

	if _, err := store.TagSkill(ctx, userID, skill.ID, database.TagKind("resume"), mine.ID); !apperr.Is(err, apperr.KindValidation) {
		t.Fatalf("tag with unknown kind: err = %v, want validation kind", err)
	}
	if _, err := store.TagSkill(ctx, userID, skill.ID, database.TagKindExperience, theirs.ID); !apperr.Is(err, apperr.KindNotFound) {
		t.Fatalf("tag foreign item: err = %v, want not-found kind", err)
	}

	tag, err := store.TagSkill(ctx, userID, skill.ID, database.TagKindExperience, mine.ID)
	if err != nil {
		t.Fatalf("tag owned item: %v", err)
	}
	if err := store.UntagSkill(ctx, userID, tag.ID); err != nil {
		t.Fatalf("untag: %v", err)
	}
	if err := store.UntagSkill(ctx, userID, tag.ID); !apperr.Is(err, apperr.KindNotFound) {
		t.Fatalf("untag twice: err = %v, want not-found kind", err)
	}
}

func TestUpdateOwnedScopedToOwner(t *testing.T) {
	db := newTestDB(t)
	store := NewStore(db)
	ctx := context.Background()

	owner := seedUser(t, db, "ada@example.com")
	intruder := seedUser(t, db, "bob@example.com")

	exp := database.LibraryExperience{UserID: owner, Company: "Acme Corp"}
	if err := store.CreateExperience(ctx, &exp); err != nil {
		t.Fatalf("create experience: %v", err)
	}

	err := store.UpdateExperience(ctx, intruder, exp.ID, map[string]any{"company": "Hijacked"})
	if !apperr.Is(err, apperr.KindNotFound) {
		t.Fatalf("cross-owner update: err = %v, want not-found kind", err)
	}

	if err := store.UpdateExperience(ctx, owner, exp.ID, map[string]any{"company": "Acme Corporation"}); err != nil {
		t.Fatalf("owner update: %v", err)
	}
	var reloaded database.LibraryExperience
	if err := db.First(&reloaded, exp.ID).Error; err != nil {
		t.Fatalf("reload: %v", err)
	}
	if reloaded.Company != "Acme Corporation" {
		t.Errorf("company = %q, want updated value", reloaded.Company)
	}
}
