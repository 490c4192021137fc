package syncer

import "tasksync/internal/models"

// Resolve arbitrates between a local and a server version of the same task.
// Pure and deterministic: identical inputs always produce identical output.
//
// Later updated_at wins outright. On an exact timestamp tie a deletion beats a
// content edit; when both or neither side is deleted, local wins.
func Resolve(local, server models.Task) models.Task {
	if local.UpdatedAt.After(server.UpdatedAt) {
		return local
	}
	if server.UpdatedAt.After(local.UpdatedAt) {
		return server
	}

	if local.IsDeleted != server.IsDeleted {
		if local.IsDeleted {
			return local
		}
		return server
	}

	return local
}
