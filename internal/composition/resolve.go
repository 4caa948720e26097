package composition

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"resumeadvisor/internal/apperr"
	"resumeadvisor/internal/database"
)

// ResumeView is the fully resolved content tree of one resume: sections in
// strictly increasing position order, each holding its references in position
// order with display text already derived.
type ResumeView struct {
	ResumeID    uint           `json:"resume_id"`
	Title       string         `json:"title"`
	TemplateKey string         `json:"template_key"`
	IsPrimary   bool           `json:"is_primary"`
	Summary     string         `json:"summary,omitempty"`
	Theme       datatypes.JSON `json:"theme,omitempty"`
	Sections    []SectionView  `json:"sections"`
}

// SectionView is one resolved top-level section.
type SectionView struct {
	SectionID   uint             `json:"section_id"`
	Type        string           `json:"type"`
	Title       string           `json:"title,omitempty"`
	Position    int              `json:"position"`
	Experiences []ExperienceView `json:"experiences,omitempty"`
	Education   []EducationView  `json:"education,omitempty"`
	Projects    []ProjectView    `json:"projects,omitempty"`
	Skills      []SkillView      `json:"skills,omitempty"`
}

// ExperienceView is a resolved experience reference.
type ExperienceView struct {
	RefID     uint         `json:"ref_id"`
	Position  int          `json:"position"`
	Company   string       `json:"company"`
	Title     string       `json:"title"`
	Location  string       `json:"location,omitempty"`
	StartDate *time.Time   `json:"start_date,omitempty"`
	EndDate   *time.Time   `json:"end_date,omitempty"`
	Summary   string       `json:"summary,omitempty"`
	Bullets   []BulletView `json:"bullets"`
}

// EducationView is a resolved education reference.
type EducationView struct {
	RefID     uint       `json:"ref_id"`
	Position  int        `json:"position"`
	School    string     `json:"school"`
	Degree    string     `json:"degree,omitempty"`
	Program   string     `json:"program,omitempty"`
	Location  string     `json:"location,omitempty"`
	StartDate *time.Time `json:"start_date,omitempty"`
	EndDate   *time.Time `json:"end_date,omitempty"`
	GPA       string     `json:"gpa,omitempty"`
}

// ProjectView is a resolved project reference.
type ProjectView struct {
	RefID     uint         `json:"ref_id"`
	Position  int          `json:"position"`
	Name      string       `json:"name"`
	URL       string       `json:"url,omitempty"`
	StartDate *time.Time   `json:"start_date,omitempty"`
	EndDate   *time.Time   `json:"end_date,omitempty"`
	Summary   string       `json:"summary,omitempty"`
	Bullets   []BulletView `json:"bullets"`
}

// SkillView is a resolved skill reference.
type SkillView struct {
	RefID       uint   `json:"ref_id"`
	Position    int    `json:"position"`
	Name        string `json:"name"`
	Category    string `json:"category,omitempty"`
	Proficiency string `json:"proficiency,omitempty"`
}

// BulletView is one display line. Text is the override when a non-empty
// override exists, else the canonical library text at resolve time.
type BulletView struct {
	BulletID   uint   `json:"bullet_id"`
	Position   int    `json:"position"`
	Text       string `json:"text"`
	Overridden bool   `json:"overridden"`
}

// Resolve walks the resume's composition rows and produces the rendered
// content tree. Display text is derived late: editing a library bullet
// changes the output of every resume that does not override it. A reference
// whose library row has vanished fails the whole resolve with a
// dangling-reference error, never a silently dropped line.
func (e *Engine) Resolve(ctx context.Context, userID, resumeID uint) (*ResumeView, error) {
	var view *ResumeView
	err := e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var resume database.Resume
		if err := tx.Where("id = ? AND user_id = ?", resumeID, userID).
			First(&resume).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperr.NotFound("resume not found")
			}
			return fmt.Errorf("load resume: %w", err)
		}

		view = &ResumeView{
			ResumeID:    resume.ID,
			Title:       resume.Title,
			TemplateKey: resume.TemplateKey,
			IsPrimary:   resume.IsPrimary,
		}

		var summary database.ResumeSummary
		switch err := tx.Where("resume_id = ?", resumeID).First(&summary).Error; {
		case err == nil:
			view.Summary = summary.Text
		case !errors.Is(err, gorm.ErrRecordNotFound):
			return fmt.Errorf("load summary: %w", err)
		}

		var theme database.ResumeThemeSettings
		switch err := tx.Where("resume_id = ?", resumeID).First(&theme).Error; {
		case err == nil:
			view.Theme = theme.Options
		case !errors.Is(err, gorm.ErrRecordNotFound):
			return fmt.Errorf("load theme: %w", err)
		}

		experiences, err := resolveExperiences(tx, resumeID)
		if err != nil {
			return err
		}
		education, err := resolveEducation(tx, resumeID)
		if err != nil {
			return err
		}
		projects, err := resolveProjects(tx, resumeID)
		if err != nil {
			return err
		}
		skills, err := resolveSkills(tx, resumeID)
		if err != nil {
			return err
		}

		var sections []database.ResumeSection
		if err := tx.Where("resume_id = ?", resumeID).
			Order("position ASC").
			Find(&sections).Error; err != nil {
			return fmt.Errorf("load sections: %w", err)
		}

		view.Sections = make([]SectionView, 0, len(sections))
		for _, s := range sections {
			sv := SectionView{
				SectionID: s.ID,
				Type:      s.Type,
				Title:     s.TitleOverride,
				Position:  s.Position,
			}
			// A section with no matching references resolves to an
			// empty list, not an error.
			switch s.Type {
			case "experience":
				sv.Experiences = experiences
			case "education":
				sv.Education = education
			case "projects":
				sv.Projects = projects
			case "skills":
				sv.Skills = skills
			}
			view.Sections = append(view.Sections, sv)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return view, nil
}

func resolveExperiences(tx *gorm.DB, resumeID uint) ([]ExperienceView, error) {
	var refs []database.ResumeExperienceRef
	if err := tx.Where("resume_id = ?", resumeID).
		Order("position ASC").
		Find(&refs).Error; err != nil {
		return nil, fmt.Errorf("load experience refs: %w", err)
	}

	out := make([]ExperienceView, 0, len(refs))
	for _, ref := range refs {
		var exp database.LibraryExperience
		if err := tx.First(&exp, ref.LibraryExperienceID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, apperr.Dangling(fmt.Sprintf("experience ref %d points at a deleted library row", ref.ID))
			}
			return nil, fmt.Errorf("load experience: %w", err)
		}

		var bullets []database.ExperienceBullet
		if err := tx.Where("library_experience_id = ?", exp.ID).
			Order("position ASC").
			Find(&bullets).Error; err != nil {
			return nil, fmt.Errorf("load bullets: %w", err)
		}

		var overrides []database.ExperienceBulletOverride
		if err := tx.Where("ref_id = ?", ref.ID).
			Order("position ASC").
			Find(&overrides).Error; err != nil {
			return nil, fmt.Errorf("load overrides: %w", err)
		}

		resolved, err := mergeBullets(experienceBullets(bullets), experienceOverrides(overrides), ref.ID)
		if err != nil {
			return nil, err
		}

		out = append(out, ExperienceView{
			RefID:     ref.ID,
			Position:  ref.Position,
			Company:   exp.Company,
			Title:     exp.Title,
			Location:  exp.Location,
			StartDate: exp.StartDate,
			EndDate:   exp.EndDate,
			Summary:   exp.Summary,
			Bullets:   resolved,
		})
	}
	return out, nil
}

func resolveProjects(tx *gorm.DB, resumeID uint) ([]ProjectView, error) {
	var refs []database.ResumeProjectRef
	if err := tx.Where("resume_id = ?", resumeID).
		Order("position ASC").
		Find(&refs).Error; err != nil {
		return nil, fmt.Errorf("load project refs: %w", err)
	}

	out := make([]ProjectView, 0, len(refs))
	for _, ref := range refs {
		var proj database.LibraryProject
		if err := tx.First(&proj, ref.LibraryProjectID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, apperr.Dangling(fmt.Sprintf("project ref %d points at a deleted library row", ref.ID))
			}
			return nil, fmt.Errorf("load project: %w", err)
		}

		var bullets []database.ProjectBullet
		if err := tx.Where("library_project_id = ?", proj.ID).
			Order("position ASC").
			Find(&bullets).Error; err != nil {
			return nil, fmt.Errorf("load bullets: %w", err)
		}

		var overrides []database.ProjectBulletOverride
		if err := tx.Where("ref_id = ?", ref.ID).
			Order("position ASC").
			Find(&overrides).Error; err != nil {
			return nil, fmt.Errorf("load overrides: %w", err)
		}

		resolved, err := mergeBullets(projectBullets(bullets), projectOverrides(overrides), ref.ID)
		if err != nil {
			return nil, err
		}

		out = append(out, ProjectView{
			RefID:     ref.ID,
			Position:  ref.Position,
			Name:      proj.Name,
			URL:       proj.URL,
			StartDate: proj.StartDate,
			EndDate:   proj.EndDate,
			Summary:   proj.Summary,
			Bullets:   resolved,
		})
	}
	return out, nil
}

func resolveEducation(tx *gorm.DB, resumeID uint) ([]EducationView, error) {
	var refs []database.ResumeEducationRef
	if err := tx.Where("resume_id = ?", resumeID).
		Order("position ASC").
		Find(&refs).Error; err != nil {
		return nil, fmt.Errorf("load education refs: %w", err)
	}

	out := make([]EducationView, 0, len(refs))
	for _, ref := range refs {
		var edu database.LibraryEducation
		if err := tx.First(&edu, ref.LibraryEducationID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, apperr.Dangling(fmt.Sprintf("education ref %d points at a deleted library row", ref.ID))
			}
			return nil, fmt.Errorf("load education: %w", err)
		}
		out = append(out, EducationView{
			RefID:     ref.ID,
			Position:  ref.Position,
			School:    edu.School,
			Degree:    edu.Degree,
			Program:   edu.Program,
			Location:  edu.Location,
			StartDate: edu.StartDate,
			EndDate:   edu.EndDate,
			GPA:       edu.GPA,
		})
	}
	return out, nil
}

func resolveSkills(tx *gorm.DB, resumeID uint) ([]SkillView, error) {
	var refs []database.ResumeSkillRef
	if err := tx.Where("resume_id = ?", resumeID).
		Order("position ASC").
		Find(&refs).Error; err != nil {
		return nil, fmt.Errorf("load skill refs: %w", err)
	}

	out := make([]SkillView, 0, len(refs))
	for _, ref := range refs {
		var skill database.LibrarySkill
		if err := tx.First(&skill, ref.LibrarySkillID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, apperr.Dangling(fmt.Sprintf("skill ref %d points at a deleted library row", ref.ID))
			}
			return nil, fmt.Errorf("load skill: %w", err)
		}
		out = append(out, SkillView{
			RefID:       ref.ID,
			Position:    ref.Position,
			Name:        skill.Name,
			Category:    skill.Category,
			Proficiency: ref.Proficiency,
		})
	}
	return out, nil
}

// bulletRow and overrideRow let experience and project bullets share one
// merge implementation.
type bulletRow struct {
	ID       uint
	Position int
	Text     string
}

type overrideRow struct {
	BulletID uint
	Position int
	Text     *string
}

func experienceBullets(in []database.ExperienceBullet) []bulletRow {
	out := make([]bulletRow, len(in))
	for i, b := range in {
		out[i] = bulletRow{ID: b.ID, Position: b.Position, Text: b.Text}
	}
	return out
}

func projectBullets(in []database.ProjectBullet) []bulletRow {
	out := make([]bulletRow, len(in))
	for i, b := range in {
		out[i] = bulletRow{ID: b.ID, Position: b.Position, Text: b.Text}
	}
	return out
}

func experienceOverrides(in []database.ExperienceBulletOverride) []overrideRow {
	out := make([]overrideRow, len(in))
	for i, o := range in {
		out[i] = overrideRow{BulletID: o.BulletID, Position: o.Position, Text: o.Text}
	}
	return out
}

func projectOverrides(in []database.ProjectBulletOverride) []overrideRow {
	out := make([]overrideRow, len(in))
	for i, o := range in {
		out[i] = overrideRow{BulletID: o.BulletID, Position: o.Position, Text: o.Text}
	}
	return out
}

// mergeBullets derives the display list for one reference. Every library
// bullet appears; an override row re-texts and/or repositions the bullet it
// binds. An override whose bullet has been deleted fails the resolve closed.
func mergeBullets(rows []bulletRow, overrides []overrideRow, refID uint) ([]BulletView, error) {
	known := make(map[uint]int, len(rows))
	for i, r := range rows {
		known[r.ID] = i
	}

	overridden := make(map[uint]bool, len(overrides))
	for _, o := range overrides {
		idx, ok := known[o.BulletID]
		if !ok {
			return nil, apperr.Dangling(fmt.Sprintf("override under ref %d points at a deleted bullet", refID))
		}
		rows[idx].Position = o.Position
		if o.Text != nil && *o.Text != "" {
			rows[idx].Text = *o.Text
			overridden[o.BulletID] = true
		}
	}

	sort.SliceStable(rows, func(i, j int) bool { return rows[i].Position < rows[j].Position })

	out := make([]BulletView, len(rows))
	for i, r := range rows {
		out[i] = BulletView{
			BulletID:   r.ID,
			Position:   r.Position,
			Text:       r.Text,
			Overridden: overridden[r.ID],
		}
	}
	return out, nil
}
