package rbac

import "github.com/gatehouse-cms/gatehouse/internal/model"

// Names of the built-in role tiers, most senior first.
const (
	MasterAdmin        = "Master Admin"
	Webmaster          = "Webmaster"
	ContentAdmin       = "Content Admin"
	EditorInChief      = "Editor-in-Chief"
	SectionEditors     = "Section Editors"
	SeniorWriters      = "Senior Writers"
	StaffWriters       = "Staff Writers"
	Contributors       = "Contributors"
	Reviewers          = "Reviewers"
	SocialMediaManager = "Social Media Manager"
)

// DefaultRoles returns the ten-tier magazine newsroom hierarchy. Each tier
// includes the next junior tier, so the allowed set for a requirement is the
// tier itself plus everything above it.
func DefaultRoles() []model.Role {
	tiers := []struct {
		name  string
		desc  string
		perms []string
	}{
		{MasterAdmin, "Unrestricted access to every part of the back office", []string{
			"*",
		}},
		{Webmaster, "Site configuration, maintenance and technical operations", []string{
			"system.site_config", "technical.*", "security.view_logs", "analytics.export",
			"files.settings.*", "files.security.view",
		}},
		{ContentAdmin, "Manages all published content and content users", []string{
			"content.delete", "content.moderate", "content.schedule", "users.view_content_users",
			"files.newsletter.*", "files.events.*", "files.flipbooks.*", "files.downloads.*", "files.lists.*",
		}},
		{EditorInChief, "Owns editorial strategy and standards", []string{
			"editorial.strategy", "editorial.standards", "editorial.approvals", "content.quality_control",
			"files.categories.edit", "files.authors.edit",
		}},
		{SectionEditors, "Runs a section and coordinates its writers", []string{
			"editorial.section_strategy", "editorial.writer_coordination", "files.dashboard.view",
			"files.analytics.view", "analytics.view",
		}},
		{SeniorWriters, "Feature and investigative writing", []string{
			"content.feature_articles", "content.investigative",
		}},
		{StaffWriters, "Daily articles and event coverage", []string{
			"content.edit", "content.publish", "content.daily_articles", "content.event_coverage",
			"files.video_articles.*",
		}},
		{Contributors, "Submits articles for review", []string{
			"content.create", "content.submit", "content.limited_edit", "files.articles.*", "files.media.view",
		}},
		{Reviewers, "Fact checking and quality assurance", []string{
			"content.review", "content.fact_check", "content.quality_assurance", "content.approve",
			"files.articles.view", "files.categories.view", "files.authors.view",
		}},
		{SocialMediaManager, "Social platforms and promotion", []string{
			"social.*", "files.social.*",
		}},
	}

	roles := make([]model.Role, len(tiers))
	for i, t := range tiers {
		roles[i] = model.Role{
			Name:        t.name,
			Description: t.desc,
			Rank:        i + 1,
			Includes:    []string{},
			Permissions: t.perms,
		}
		if i+1 < len(tiers) {
			roles[i].Includes = []string{tiers[i+1].name}
		}
	}
	return roles
}
