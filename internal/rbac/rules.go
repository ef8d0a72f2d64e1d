package rbac

const (
	RoleStudent     = "student"
	RoleTeacher     = "teacher"
	RoleCoordinator = "coordinator"
	RoleAdmin       = "admin"

	// RoleSystem acts for automatic workflow steps such as auto-claim.
	RoleSystem = "system"
)

// RolePermissions is the default policy. Teachers author questions and
// assessments; coordinators and admins review them.
var RolePermissions = map[string][]string{
	RoleStudent: {
		"assessment:view",
		"attempt:create",
		"attempt:save",
		"attempt:submit",
		"attempt:view-own",
	},
	RoleTeacher: {
		"question:*",
		"grade:preview",
		"assessment:create",
		"assessment:edit",
		"assessment:view",
		"review:author",
		"attempt:view-all",
		"attempt:grade",
		"gradebook:sync",
	},
	RoleCoordinator: {
		"question:view",
		"assessment:view",
		"review:claim",
		"review:coordinate",
		"attempt:view-all",
	},
	RoleAdmin: {
		"*", // everything
	},
	RoleSystem: {
		"review:claim",
	},
}
