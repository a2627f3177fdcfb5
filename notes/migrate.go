package notes

import (
	"context"

	"homenotes/localcache"
	"homenotes/models"
	"homenotes/remote"

	"github.com/rohanthewiz/logger"
)

// MigrateGuestData moves notes and categories created as a guest into a new account.
// The remote profile is only seeded when it holds neither notes nor custom categories,
// and each user is migrated once per device.
func (r *Reconciler) MigrateGuestData(ctx context.Context, user models.User) error {
	if r.store == nil {
		return nil
	}
	migratedKey := localcache.MigratedKey(user.UID)
	if _, ok, err := r.durable.Get(migratedKey); err != nil || ok {
		return err
	}

	guestNotes := r.cachedNotes()
	var guestCats []models.Category
	if _, err := localcache.GetJSON(r.durable, localcache.KeyCategories, &guestCats); err != nil {
		logger.LogErr(err, "failed to read guest categories")
	}
	if len(guestNotes) == 0 && len(guestCats) <= 1 {
		return r.markMigrated(user.UID)
	}

	var doc models.UserDocument
	found, err := remote.ReadInto(ctx, r.store, remote.UserPath(user.UID), &doc)
	if err != nil {
		// Try again on the next sign-in.
		logger.LogErr(err, "failed to read profile for guest migration", "uid", user.UID)
		return nil
	}
	if found && (len(doc.Notes) > 0 || len(doc.Categories) > 1) {
		logger.Info("Account already has data, skipping guest migration", "uid", user.UID)
		return r.markMigrated(user.UID)
	}

	now := models.NowMillis()
	if !found {
		doc = models.NewUserDocument(user, now)
	}
	doc.Notes = MergeNotes(nil, guestNotes)
	if len(guestCats) > 0 {
		doc.Categories = models.EnsureSentinel(guestCats)
	}
	doc.MigratedAt = now
	doc.LastUpdated = now

	if err := r.store.Set(ctx, remote.UserPath(user.UID), doc); err != nil {
		logger.LogErr(err, "failed to migrate guest data", "uid", user.UID)
		return nil
	}
	logger.Info("Guest data migrated", "uid", user.UID, "notes", len(doc.Notes), "categories", len(doc.Categories))
	return r.markMigrated(user.UID)
}

func (r *Reconciler) markMigrated(uid string) error {
	if err := localcache.SetInt64(r.durable, localcache.MigratedKey(uid), models.NowMillis()); err != nil {
		return err
	}
	return r.durable.Remove(localcache.KeyIsGuest)
}
