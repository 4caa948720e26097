package composition

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"gorm.io/datatypes"
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

func seedResume(t *testing.T, db *gorm.DB, userID uint, title string) uint {
	t.Helper()
	resume := database.Resume{UserID: userID, Title: title}
	if err := db.Create(&resume).Error; err != nil {
		t.Fatalf("seed resume: %v", err)
	}
	return resume.ID
}

func seedExperience(t *testing.T, db *gorm.DB, userID uint, company string, bullets ...string) (uint, []uint) {
	t.Helper()
	exp := database.LibraryExperience{UserID: userID, Company: company, Title: "Engineer"}
	if err := db.Create(&exp).Error; err != nil {
		t.Fatalf("seed experience: %v", err)
	}
	ids := make([]uint, 0, len(bullets))
	for i, text := range bullets {
		bullet := database.ExperienceBullet{LibraryExperienceID: exp.ID, Position: i, Text: text}
		if err := db.Create(&bullet).Error; err != nil {
			t.Fatalf("seed bullet: %v", err)
		}
		ids = append(ids, bullet.ID)
	}
	return exp.ID, ids
}

func strptr(s string) *string { return &s }

func TestResolveMergesOverridesWithLibraryBullets(t *testing.T) {
	db := newTestDB(t)
	engine := NewEngine(db)
	ctx := context.Background()

	userID := seedUser(t, db, "ada@example.com")
	resumeID := seedResume(t, db, userID, "Backend Resume")
	expID, bulletIDs := seedExperience(t, db, userID, "Acme Corp",
		"Built the ingestion pipeline",
		"Shipped the v2 API",
	)

	if _, err := engine.AddSection(ctx, userID, resumeID, "experience", "", 0); err != nil {
		t.Fatalf("add section: %v", err)
	}
	refID, err := engine.AttachExperience(ctx, userID, resumeID, expID, 0)
	if err != nil {
		t.Fatalf("attach experience: %v", err)
	}

	// Override only the first bullet; the second must still appear with
	// its library text.
	if _, err := engine.SetExperienceBulletOverride(ctx, userID, refID, bulletIDs[0], strptr("Led the ingestion pipeline rebuild"), 0); err != nil {
		t.Fatalf("set override: %v", err)
	}

	view, err := engine.Resolve(ctx, userID, resumeID)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if len(view.Sections) != 1 {
		t.Fatalf("sections = %d, want 1", len(view.Sections))
	}
	experiences := view.Sections[0].Experiences
	if len(experiences) != 1 {
		t.Fatalf("experiences = %d, want 1", len(experiences))
	}
	bullets := experiences[0].Bullets
	if len(bullets) != 2 {
		t.Fatalf("bullets = %d, want 2", len(bullets))
	}
	if bullets[0].Text != "Led the ingestion pipeline rebuild" || !bullets[0].Overridden {
		t.Errorf("first bullet = %+v, want overridden text", bullets[0])
	}
	if bullets[1].Text != "Shipped the v2 API" || bullets[1].Overridden {
		t.Errorf("second bullet = %+v, want library text", bullets[1])
	}

	// Late binding: editing the library bullet changes the resolved output
	// of every resume that does not override it.
	if err := db.Model(&database.ExperienceBullet{}).
		Where("id = ?", bulletIDs[1]).
		Update("text", "Shipped the v3 API").Error; err != nil {
		t.Fatalf("update library bullet: %v", err)
	}
	view, err = engine.Resolve(ctx, userID, resumeID)
	if err != nil {
		t.Fatalf("resolve after edit: %v", err)
	}
	got := view.Sections[0].Experiences[0].Bullets[1].Text
	if got != "Shipped the v3 API" {
		t.Errorf("second bullet after library edit = %q, want %q", got, "Shipped the v3 API")
	}
}

func TestAttachRejectsCrossOwnerLibraryRow(t *testing.T) {
	db := newTestDB(t)
	engine := NewEngine(db)
	ctx := context.Background()

	owner := seedUser(t, db, "owner@example.com")
	intruder := seedUser(t, db, "intruder@example.com")
	resumeID := seedResume(t, db, intruder, "Stolen")
	expID, _ := seedExperience(t, db, owner, "Acme Corp")

	_, err := engine.AttachExperience(ctx, intruder, resumeID, expID, 0)
	if !apperr.Is(err, apperr.KindCrossOwner) {
		t.Fatalf("attach cross-owner: err = %v, want cross-owner kind", err)
	}
}

func TestAttachRejectsOccupiedPosition(t *testing.T) {
	db := newTestDB(t)
	engine := NewEngine(db)
	ctx := context.Background()

	userID := seedUser(t, db, "ada@example.com")
	resumeID := seedResume(t, db, userID, "Backend Resume")
	firstExp, _ := seedExperience(t, db, userID, "Acme Corp")
	secondExp, _ := seedExperience(t, db, userID, "Globex")

	if _, err := engine.AttachExperience(ctx, userID, resumeID, firstExp, 3); err != nil {
		t.Fatalf("attach first: %v", err)
	}
	_, err := engine.AttachExperience(ctx, userID, resumeID, secondExp, 3)
	if !apperr.Is(err, apperr.KindConflict) {
		t.Fatalf("attach onto occupied position: err = %v, want conflict kind", err)
	}
}

func TestResolveFailsClosedOnDanglingRef(t *testing.T) {
	db := newTestDB(t)
	engine := NewEngine(db)
	ctx := context.Background()

	userID := seedUser(t, db, "ada@example.com")
	resumeID := seedResume(t, db, userID, "Backend Resume")
	expID, _ := seedExperience(t, db, userID, "Acme Corp", "Did things")

	if _, err := engine.AddSection(ctx, userID, resumeID, "experience", "", 0); err != nil {
		t.Fatalf("add section: %v", err)
	}
	if _, err := engine.AttachExperience(ctx, userID, resumeID, expID, 0); err != nil {
		t.Fatalf("attach: %v", err)
	}

	// Delete the library row out from under the ref.
	if err := db.Delete(&database.LibraryExperience{}, expID).Error; err != nil {
		t.Fatalf("delete library row: %v", err)
	}

	_, err := engine.Resolve(ctx, userID, resumeID)
	if !apperr.Is(err, apperr.KindDangling) {
		t.Fatalf("resolve with dangling ref: err = %v, want dangling kind", err)
	}
}

func TestResolveFailsClosedOnDanglingOverride(t *testing.T) {
	db := newTestDB(t)
	engine := NewEngine(db)
	ctx := context.Background()

	userID := seedUser(t, db, "ada@example.com")
	resumeID := seedResume(t, db, userID, "Backend Resume")
	expID, bulletIDs := seedExperience(t, db, userID, "Acme Corp", "Did things")

	if _, err := engine.AddSection(ctx, userID, resumeID, "experience", "", 0); err != nil {
		t.Fatalf("add section: %v", err)
	}
	refID, err := engine.AttachExperience(ctx, userID, resumeID, expID, 0)
	if err != nil {
		t.Fatalf("attach: %v", err)
	}
	if _, err := engine.SetExperienceBulletOverride(ctx, userID, refID, bulletIDs[0], strptr("Rephrased"), 0); err != nil {
		t.Fatalf("set override: %v", err)
	}

	if err := db.Delete(&database.ExperienceBullet{}, bulletIDs[0]).Error; err != nil {
		t.Fatalf("delete bullet: %v", err)
	}

	_, err = engine.Resolve(ctx, userID, resumeID)
	if !apperr.Is(err, apperr.KindDangling) {
		t.Fatalf("resolve with dangling override: err = %v, want dangling kind", err)
	}
}

func TestReorderShiftsInterval(t *testing.T) {
	db := newTestDB(t)
	engine := NewEngine(db)
	ctx := context.Background()

	userID := seedUser(t, db, "ada@example.com")
	resumeID := seedResume(t, db, userID, "Backend Resume")

	refIDs := make([]uint, 0, 3)
	for i, name := range []string{"Go", "Postgres", "Redis"} {
		skill := database.LibrarySkill{UserID: userID, Name: name}
		if err := db.Create(&skill).Error; err != nil {
			t.Fatalf("seed skill: %v", err)
		}
		refID, err := engine.AttachSkill(ctx, userID, resumeID, skill.ID, i, "")
		if err != nil {
			t.Fatalf("attach skill: %v", err)
		}
		refIDs = append(refIDs, refID)
	}

	// Move the last ref to the front; the other two shift down.
	if err := engine.Reorder(ctx, userID, resumeID, RefKindSkill, refIDs[2], 0); err != nil {
		t.Fatalf("reorder: %v", err)
	}

	positions := map[uint]int{}
	var refs []database.ResumeSkillRef
	if err := db.Where("resume_id = ?", resumeID).Find(&refs).Error; err != nil {
		t.Fatalf("load refs: %v", err)
	}
	for _, ref := range refs {
		positions[ref.ID] = ref.Position
	}
	want := map[uint]int{refIDs[2]: 0, refIDs[0]: 1, refIDs[1]: 2}
	for id, pos := range want {
		if positions[id] != pos {
			t.Errorf("ref %d position = %d, want %d", id, positions[id], pos)
		}
	}

	// Moving a row onto its current position is a no-op.
	if err := engine.Reorder(ctx, userID, resumeID, RefKindSkill, refIDs[2], 0); err != nil {
		t.Fatalf("no-op reorder: %v", err)
	}
	var moved database.ResumeSkillRef
	if err := db.First(&moved, refIDs[2]).Error; err != nil {
		t.Fatalf("reload moved ref: %v", err)
	}
	if moved.Position != 0 {
		t.Errorf("no-op reorder moved position to %d", moved.Position)
	}
}

func TestDetachRemovesOverridesButNotLibraryRows(t *testing.T) {
	db := newTestDB(t)
	engine := NewEngine(db)
	ctx := context.Background()

	userID := seedUser(t, db, "ada@example.com")
	resumeID := seedResume(t, db, userID, "Backend Resume")
	expID, bulletIDs := seedExperience(t, db, userID, "Acme Corp", "Did things")

	refID, err := engine.AttachExperience(ctx, userID, resumeID, expID, 0)
	if err != nil {
		t.Fatalf("attach: %v", err)
	}
	if _, err := engine.SetExperienceBulletOverride(ctx, userID, refID, bulletIDs[0], strptr("Rephrased"), 0); err != nil {
		t.Fatalf("set override: %v", err)
	}

	if err := engine.Detach(ctx, userID, RefKindExperience, refID); err != nil {
		t.Fatalf("detach: %v", err)
	}

	var overrides int64
	if err := db.Model(&database.ExperienceBulletOverride{}).Where("ref_id = ?", refID).Count(&overrides).Error; err != nil {
		t.Fatalf("count overrides: %v", err)
	}
	if overrides != 0 {
		t.Errorf("overrides after detach = %d, want 0", overrides)
	}

	var exp database.LibraryExperience
	if err := db.First(&exp, expID).Error; err != nil {
		t.Errorf("library experience gone after detach: %v", err)
	}
}

func TestSetPrimaryKeepsAtMostOne(t *testing.T) {
	db := newTestDB(t)
	engine := NewEngine(db)
	ctx := context.Background()

	userID := seedUser(t, db, "ada@example.com")
	first := seedResume(t, db, userID, "First")
	second := seedResume(t, db, userID, "Second")

	if err := engine.SetPrimary(ctx, userID, first); err != nil {
		t.Fatalf("set primary first: %v", err)
	}
	if err := engine.SetPrimary(ctx, userID, second); err != nil {
		t.Fatalf("set primary second: %v", err)
	}

	var primaries int64
	if err := db.Model(&database.Resume{}).
		Where("user_id = ? AND is_primary = ?", userID, true).
		Count(&primaries).Error; err != nil {
		t.Fatalf("count primaries: %v", err)
	}
	if primaries != 1 {
		t.Errorf("primary resumes = %d, want 1", primaries)
	}
	var resume database.Resume
	if err := db.First(&resume, second).Error; err != nil {
		t.Fatalf("reload: %v", err)
	}
	if !resume.IsPrimary {
		t.Errorf("second resume not primary after SetPrimary")
	}
}

func TestSummaryAndThemeUpsert(t *testing.T) {
	db := newTestDB(t)
	engine := NewEngine(db)
	ctx := context.Background()

	userID := seedUser(t, db, "ada@example.com")
	resumeID := seedResume(t, db, userID, "Backend Resume")

	if err := engine.SetSummary(ctx, userID, resumeID, "first draft"); err != nil {
		t.Fatalf("set summary: %v", err)
	}
	if err := engine.SetSummary(ctx, userID, resumeID, "second draft"); err != nil {
		t.Fatalf("set summary again: %v", err)
	}

	var summaries []database.ResumeSummary
	if err := db.Where("resume_id = ?", resumeID).Find(&summaries).Error; err != nil {
		t.Fatalf("load summaries: %v", err)
	}
	if len(summaries) != 1 {
		t.Fatalf("summary rows = %d, want 1", len(summaries))
	}
	if summaries[0].Text != "second draft" {
		t.Errorf("summary text = %q, want %q", summaries[0].Text, "second draft")
	}

	if err := engine.SetTheme(ctx, userID, resumeID, datatypes.JSON(`{"font":"serif"}`)); err != nil {
		t.Fatalf("set theme: %v", err)
	}
	if err := engine.SetTheme(ctx, userID, resumeID, datatypes.JSON(`{"font":"sans"}`)); err != nil {
		t.Fatalf("set theme again: %v", err)
	}
	var themes []database.ResumeThemeSettings
	if err := db.Where("resume_id = ?", resumeID).Find(&themes).Error; err != nil {
		t.Fatalf("load themes: %v", err)
	}
	if len(themes) != 1 {
		t.Fatalf("theme rows = %d, want 1", len(themes))
	}

	view, err := engine.Resolve(ctx, userID, resumeID)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if view.Summary != "second draft" {
		t.Errorf("resolved summary = %q, want %q", view.Summary, "second draft")
	}
}

func TestEmptySectionResolvesToEmptyList(t *testing.T) {
	db := newTestDB(t)
	engine := NewEngine(db)
	ctx := context.Background()

	userID := seedUser(t, db, "ada@example.com")
	resumeID := seedResume(t, db, userID, "Backend Resume")

	if _, err := engine.AddSection(ctx, userID, resumeID, "projects", "Selected Projects", 0); err != nil {
		t.Fatalf("add section: %v", err)
	}

	view, err := engine.Resolve(ctx, userID, resumeID)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if len(view.Sections) != 1 {
		t.Fatalf("sections = %d, want 1", len(view.Sections))
	}
	if got := len(view.Sections[0].Projects); got != 0 {
		t.Errorf("projects in empty section = %d, want 0", got)
	}
	if view.Sections[0].Title != "Selected Projects" {
		t.Errorf("section title = %q, want override", view.Sections[0].Title)
	}
}

func TestOverrideRejectsBulletFromOtherLibraryRow(t *testing.T) {
	db := newTestDB(t)
	engine := NewEngine(db)
	ctx := context.Background()

	userID := seedUser(t, db, "ada@example.com")
	resumeID := seedResume(t, db, userID, "Backend Resume")
	expID, _ := seedExperience(t, db, userID, "Acme Corp", "Did things")
	_, otherBullets := seedExperience(t, db, userID, "Globex", "Did other things")

	refID, err := engine.AttachExperience(ctx, userID, resumeID, expID, 0)
	if err != nil {
		t.Fatalf("attach: %v", err)
	}

	_, err = engine.SetExperienceBulletOverride(ctx, userID, refID, otherBullets[0], strptr("nope"), 0)
	if !apperr.Is(err, apperr.KindValidation) {
		t.Fatalf("override foreign bullet: err = %v, want validation kind", err)
	}
}
