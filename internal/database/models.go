package database

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// User 表示系统中的账号与个人资料。
type User struct {
	gorm.Model
	Email         string `gorm:"uniqueIndex;size:255"`
	PasswordHash  string `gorm:"size:255"`
	FirstName     string `gorm:"size:64"`
	LastName      string `gorm:"size:64"`
	Phone         string `gorm:"size:32"`
	Location      string `gorm:"size:128"`
	LinkedIn      string `gorm:"size:255"`
	GitHub        string `gorm:"size:255"`
	EmailVerified bool   `gorm:"default:false"`

	Resumes []Resume `gorm:"constraint:OnDelete:CASCADE"`
}

// ---- Library layer ----
//
// Library rows are the user's reusable content. They are edited directly and
// never belong to a specific resume; resumes point at them via reference rows
// and may locally shadow display text.

// LibraryExperience 表示一段可复用的工作经历。
type LibraryExperience struct {
	gorm.Model
	UserID    uint   `gorm:"index"`
	Company   string `gorm:"size:255"`
	Title     string `gorm:"size:255"`
	Location  string `gorm:"size:128"`
	StartDate *time.Time
	EndDate   *time.Time
	Summary   string `gorm:"type:text"`

	Bullets []ExperienceBullet `gorm:"constraint:OnDelete:CASCADE"`
}

// ExperienceBullet is one ordered line under a library experience.
type ExperienceBullet struct {
	gorm.Model
	LibraryExperienceID uint   `gorm:"index"`
	Position            int    `gorm:"index"`
	Text                string `gorm:"type:text"`
}

// LibraryEducation 表示一条教育经历。
type LibraryEducation struct {
	gorm.Model
	UserID    uint   `gorm:"index"`
	School    string `gorm:"size:255"`
	Degree    string `gorm:"size:128"`
	Program   string `gorm:"size:128"`
	Location  string `gorm:"size:128"`
	StartDate *time.Time
	EndDate   *time.Time
	GPA       string `gorm:"size:16"`
}

// LibraryProject 表示一个可复用的项目条目。
type LibraryProject struct {
	gorm.Model
	UserID    uint   `gorm:"index"`
	Name      string `gorm:"size:255"`
	URL       string `gorm:"size:512"`
	StartDate *time.Time
	EndDate   *time.Time
	Summary   string `gorm:"type:text"`

	Bullets []ProjectBullet `gorm:"constraint:OnDelete:CASCADE"`
}

// ProjectBullet is one ordered line under a library project.
type ProjectBullet struct {
	gorm.Model
	LibraryProjectID uint   `gorm:"index"`
	Position         int    `gorm:"index"`
	Text             string `gorm:"type:text"`
}

// LibrarySkill 表示一项技能。
type LibrarySkill struct {
	gorm.Model
	UserID   uint   `gorm:"index"`
	Name     string `gorm:"size:64"`
	Category string `gorm:"size:64"`
}

// TagKind enumerates the library kinds a skill may be tagged onto. A closed
// enum instead of a free-form item_type column, so an invalid kind is rejected
// at write time instead of persisting as a silent orphan.
type TagKind string

const (
	TagKindExperience TagKind = "experience"
	TagKindProject    TagKind = "project"
)

// Valid reports whether the kind is one of the known taggable kinds.
func (k TagKind) Valid() bool {
	return k == TagKindExperience || k == TagKindProject
}

// SkillTag attaches a library skill to a library experience or project.
type SkillTag struct {
	gorm.Model
	UserID  uint    `gorm:"index"`
	SkillID uint    `gorm:"index"`
	Kind    TagKind `gorm:"size:16"`
	ItemID  uint
}

// ---- Composition layer ----
//
// Composition rows never copy library content. Each binds a resume to exactly
// one library row with a position establishing display order.

// Resume 表示一份简历的壳：标题、模板与主简历标记。
type Resume struct {
	gorm.Model
	UserID      uint   `gorm:"index"`
	Title       string `gorm:"size:255"`
	TemplateKey string `gorm:"size:64"`
	IsPrimary   bool   `gorm:"default:false"`

	Sections       []ResumeSection       `gorm:"constraint:OnDelete:CASCADE"`
	ExperienceRefs []ResumeExperienceRef `gorm:"constraint:OnDelete:CASCADE"`
	EducationRefs  []ResumeEducationRef  `gorm:"constraint:OnDelete:CASCADE"`
	ProjectRefs    []ResumeProjectRef    `gorm:"constraint:OnDelete:CASCADE"`
	SkillRefs      []ResumeSkillRef      `gorm:"constraint:OnDelete:CASCADE"`
}

// ResumeSection defines the ordered top-level layout of a resume.
type ResumeSection struct {
	gorm.Model
	UserID        uint   `gorm:"index"`
	ResumeID      uint   `gorm:"index:idx_section_resume_pos"`
	Type          string `gorm:"size:32"`
	TitleOverride string `gorm:"size:255"`
	Position      int    `gorm:"index:idx_section_resume_pos"`
}

// ResumeExperienceRef binds a resume to one library experience at a position.
type ResumeExperienceRef struct {
	gorm.Model
	UserID              uint `gorm:"index"`
	ResumeID            uint `gorm:"index:idx_expref_resume_pos"`
	LibraryExperienceID uint `gorm:"index"`
	Position            int  `gorm:"index:idx_expref_resume_pos"`

	Overrides []ExperienceBulletOverride `gorm:"foreignKey:RefID;constraint:OnDelete:CASCADE"`
}

// ResumeEducationRef binds a resume to one library education entry.
type ResumeEducationRef struct {
	gorm.Model
	UserID             uint `gorm:"index"`
	ResumeID           uint `gorm:"index:idx_eduref_resume_pos"`
	LibraryEducationID uint `gorm:"index"`
	Position           int  `gorm:"index:idx_eduref_resume_pos"`
}

// ResumeProjectRef binds a resume to one library project at a position.
type ResumeProjectRef struct {
	gorm.Model
	UserID           uint `gorm:"index"`
	ResumeID         uint `gorm:"index:idx_projref_resume_pos"`
	LibraryProjectID uint `gorm:"index"`
	Position         int  `gorm:"index:idx_projref_resume_pos"`

	Overrides []ProjectBulletOverride `gorm:"foreignKey:RefID;constraint:OnDelete:CASCADE"`
}

// ResumeSkillRef binds a resume to one library skill. Proficiency is
// resume-local, independent of anything stored on the skill itself.
type ResumeSkillRef struct {
	gorm.Model
	UserID         uint   `gorm:"index"`
	ResumeID       uint   `gorm:"index:idx_skillref_resume_pos"`
	LibrarySkillID uint   `gorm:"index"`
	Position       int    `gorm:"index:idx_skillref_resume_pos"`
	Proficiency    string `gorm:"size:32"`
}

// ExperienceBulletOverride binds a library bullet under a resume experience
// ref. Text, when non-nil and non-empty, shadows the library bullet's text
// for this resume only.
type ExperienceBulletOverride struct {
	gorm.Model
	RefID    uint `gorm:"index:idx_expovr_ref_pos"`
	BulletID uint `gorm:"index"`
	Position int  `gorm:"index:idx_expovr_ref_pos"`
	Text     *string
}

// ProjectBulletOverride is the project-side counterpart.
type ProjectBulletOverride struct {
	gorm.Model
	RefID    uint `gorm:"index:idx_projovr_ref_pos"`
	BulletID uint `gorm:"index"`
	Position int  `gorm:"index:idx_projovr_ref_pos"`
	Text     *string
}

// ResumeSummary 每份简历至多一条自由文本摘要。
type ResumeSummary struct {
	gorm.Model
	ResumeID uint   `gorm:"uniqueIndex"`
	Text     string `gorm:"type:text"`
}

// ResumeThemeSettings 每份简历至多一条主题配置（JSONB 存储展示选项）。
type ResumeThemeSettings struct {
	gorm.Model
	ResumeID uint           `gorm:"uniqueIndex"`
	Options  datatypes.JSON `gorm:"type:jsonb"`
}

// ---- Job postings & cover letters ----

// Company 表示职位所属公司。
type Company struct {
	gorm.Model
	Name     string `gorm:"size:255"`
	Location string `gorm:"size:128"`
	Industry string `gorm:"size:128"`
	Website  string `gorm:"size:512"`
}

// JobPosting 表示用户保存的职位。
type JobPosting struct {
	gorm.Model
	UserID      uint `gorm:"index"`
	CompanyID   uint `gorm:"index"`
	Company     Company
	Title       string `gorm:"size:255"`
	Description string `gorm:"type:text"`
	JobLocation string `gorm:"size:128"`
	URL         string `gorm:"size:512"`
	PostedDate  *time.Time
	CloseDate   *time.Time
}

// CoverLetter 表示一封求职信。
type CoverLetter struct {
	gorm.Model
	UserID  uint   `gorm:"index"`
	JobID   *uint  `gorm:"index"`
	Title   string `gorm:"size:255"`
	Content string `gorm:"type:text"`
}

// AllModels lists every table for AutoMigrate, in dependency order.
func AllModels() []any {
	return []any{
		&User{},
		&LibraryExperience{}, &ExperienceBullet{},
		&LibraryEducation{},
		&LibraryProject{}, &ProjectBullet{},
		&LibrarySkill{}, &SkillTag{},
		&Resume{}, &ResumeSection{},
		&ResumeExperienceRef{}, &ResumeEducationRef{},
		&ResumeProjectRef{}, &ResumeSkillRef{},
		&ExperienceBulletOverride{}, &ProjectBulletOverride{},
		&ResumeSummary{}, &ResumeThemeSettings{},
		&Company{}, &JobPosting{}, &CoverLetter{},
	}
}
