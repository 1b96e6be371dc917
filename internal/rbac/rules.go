package rbac

// Default policy. Students only touch their own attempts and progress;
// ownership is enforced by the engines, not here.
var RolePermissions = map[string][]string{
	"student": {
		"quiz:view",
		"quiz:attempt",
		"exam:view",
		"exam:attempt",
		"progress:self",
		"access:self",
		"user:change_password",
	},
	"teacher": {
		"quiz:view",
		"exam:view",
		"exam:stats",
		"course:import",
		"progress:self",
		"access:self",
		"users:bulk_upsert",
		"users:list",
		"gradebook:resync",
		"events:read",
		"user:change_password",
	},
	"admin": {
		"*",
	},
}
