package services

import (
	"context"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/fileshare/backend/internal/models"
	"github.com/fileshare/backend/pkg/sharetoken"
	"github.com/fileshare/backend/pkg/utils"
)

func setupAccessTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed opening in-memory sqlite database: %v", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed getting sql.DB handle: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	err = db.AutoMigrate(
		&models.User{},
		&models.File{},
		&models.Bundle{},
		&models.BundleFile{},
		&models.Setting{},
	)
	if err != nil {
		t.Fatalf("failed automigrating models: %v", err)
	}

	return db
}

func createAccessTestUser(t *testing.T, db *gorm.DB, username string) *models.User {
	t.Helper()
	user := &models.User{
		Username:     username,
		Email:        username + "@test.com",
		PasswordHash: "hash",
	}
	if err := db.Create(user).Error; err != nil {
		t.Fatalf("failed creating user %s: %v", username, err)
	}
	return user
}

func createAccessTestFile(t *testing.T, db *gorm.DB, ownerID uuid.UUID, name string, public bool) *models.File {
	t.Helper()
	token, err := sharetoken.New()
	if err != nil {
		t.Fatalf("failed minting share token: %v", err)
	}
	prefix, err := utils.RandomHex(8)
	if err != nil {
		t.Fatalf("failed generating storage prefix: %v", err)
	}
	file := &models.File{
		OriginalName:      name,
		StorageName:       prefix + "_" + name,
		OwnerID:           ownerID,
		IsPublic:          public,
		ShareToken:        token,
		Size:              100,
		FileType:          "txt",
		TransactionNumber: "TXN-100",
	}
	if err := db.Create(file).Error; err != nil {
		t.Fatalf("failed creating file %s: %v", name, err)
	}
	return file
}

func TestAccessService_CanView(t *testing.T) {
	db := setupAccessTestDB(t)
	service := NewAccessService(db)

	owner := createAccessTestUser(t, db, "owner")
	stranger := createAccessTestUser(t, db, "stranger")
	publicFile := createAccessTestFile(t, db, owner.ID, "public.txt", true)
	privateFile := createAccessTestFile(t, db, owner.ID, "private.txt", false)

	t.Run("owner views own files regardless of visibility", func(t *testing.T) {
		if !service.CanView(owner.ID, publicFile) {
			t.Error("owner should view own public file")
		}
		if !service.CanView(owner.ID, privateFile) {
			t.Error("owner should view own private file")
		}
	})

	t.Run("stranger views public files only", func(t *testing.T) {
		if !service.CanView(stranger.ID, publicFile) {
			t.Error("any user should view a public file")
		}
		if service.CanView(stranger.ID, privateFile) {
			t.Error("non-owner should not view a private file")
		}
	})

	t.Run("anonymous caller views public files only", func(t *testing.T) {
		if !service.CanView(uuid.Nil, publicFile) {
			t.Error("anonymous caller should view a public file")
		}
		if service.CanView(uuid.Nil, privateFile) {
			t.Error("anonymous caller should not view a private file")
		}
	})

	t.Run("rules apply to bundles the same way", func(t *testing.T) {
		token, err := sharetoken.New()
		if err != nil {
			t.Fatalf("failed minting share token: %v", err)
		}
		bundle := &models.Bundle{
			Name:              "Case Documents",
			TransactionNumber: "TXN-100",
			OwnerID:           owner.ID,
			IsPublic:          false,
			ShareToken:        token,
		}
		if err := db.Create(bundle).Error; err != nil {
			t.Fatalf("failed creating bundle: %v", err)
		}

		if !service.CanView(owner.ID, bundle) {
			t.Error("owner should view own private bundle")
		}
		if service.CanView(stranger.ID, bundle) {
			t.Error("non-owner should not view a private bundle")
		}
	})
}

func TestAccessService_CanModify(t *testing.T) {
	db := setupAccessTestDB(t)
	service := NewAccessService(db)

	owner := createAccessTestUser(t, db, "owner")
	stranger := createAccessTestUser(t, db, "stranger")
	publicFile := createAccessTestFile(t, db, owner.ID, "public.txt", true)

	if !service.CanModify(owner.ID, publicFile) {
		t.Error("owner should modify own file")
	}
	if service.CanModify(stranger.ID, publicFile) {
		t.Error("visibility must not grant write access to non-owners")
	}
	if service.CanModify(uuid.Nil, publicFile) {
		t.Error("anonymous caller should never modify anything")
	}
}

func TestAccessService_BundleContains(t *testing.T) {
	db := setupAccessTestDB(t)
	service := NewAccessService(db)

	owner := createAccessTestUser(t, db, "owner")
	member := createAccessTestFile(t, db, owner.ID, "member.txt", false)
	outsider := createAccessTestFile(t, db, owner.ID, "outsider.txt", false)

	token, err := sharetoken.New()
	if err != nil {
		t.Fatalf("failed minting share token: %v", err)
	}
	bundle := &models.Bundle{
		Name:              "Case Documents",
		TransactionNumber: "TXN-100",
		OwnerID:           owner.ID,
		ShareToken:        token,
	}
	if err := db.Create(bundle).Error; err != nil {
		t.Fatalf("failed creating bundle: %v", err)
	}
	if err := db.Create(&models.BundleFile{BundleID: bundle.ID, FileID: member.ID}).Error; err != nil {
		t.Fatalf("failed creating membership: %v", err)
	}

	t.Run("member file is contained", func(t *testing.T) {
		contained, err := service.BundleContains(context.Background(), bundle.ID, member.ID)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !contained {
			t.Error("expected member file to be contained")
		}
	})

	t.Run("non-member file is not contained", func(t *testing.T) {
		contained, err := service.BundleContains(context.Background(), bundle.ID, outsider.ID)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if contained {
			t.Error("expected non-member file to not be contained")
		}
	})

	t.Run("unknown bundle contains nothing", func(t *testing.T) {
		contained, err := service.BundleContains(context.Background(), uuid.New(), member.ID)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if contained {
			t.Error("expected unknown bundle to contain nothing")
		}
	})
}

func TestAccessService_VerifyFilesOwned(t *testing.T) {
	db := setupAccessTestDB(t)
	service := NewAccessService(db)

	owner := createAccessTestUser(t, db, "owner")
	stranger := createAccessTestUser(t, db, "stranger")
	mine := createAccessTestFile(t, db, owner.ID, "mine.txt", false)
	theirs := createAccessTestFile(t, db, stranger.ID, "theirs.txt", false)

	t.Run("all owned", func(t *testing.T) {
		ok, err := service.VerifyFilesOwned(context.Background(), owner.ID, []uuid.UUID{mine.ID})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !ok {
			t.Error("expected owner's own file to verify")
		}
	})

	t.Run("foreign file fails the whole selection", func(t *testing.T) {
		ok, err := service.VerifyFilesOwned(context.Background(), owner.ID, []uuid.UUID{mine.ID, theirs.ID})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if ok {
			t.Error("expected selection containing a foreign file to fail")
		}
	})

	t.Run("unknown id fails the whole selection", func(t *testing.T) {
		ok, err := service.VerifyFilesOwned(context.Background(), owner.ID, []uuid.UUID{mine.ID, uuid.New()})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if ok {
			t.Error("expected selection containing an unknown id to fail")
		}
	})

	t.Run("duplicate ids count once", func(t *testing.T) {
		ok, err := service.VerifyFilesOwned(context.Background(), owner.ID, []uuid.UUID{mine.ID, mine.ID})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !ok {
			t.Error("expected duplicated owned id to verify")
		}
	})

	t.Run("empty selection verifies", func(t *testing.T) {
		ok, err := service.VerifyFilesOwned(context.Background(), owner.ID, nil)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !ok {
			t.Error("expected empty selection to verify")
		}
	})

	t.Run("deleted file no longer verifies", func(t *testing.T) {
		doomed := createAccessTestFile(t, db, owner.ID, "doomed.txt", false)
		if err := db.Delete(doomed).Error; err != nil {
			t.Fatalf("failed deleting file: %v", err)
		}

		ok, err := service.VerifyFilesOwned(context.Background(), owner.ID, []uuid.UUID{doomed.ID})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if ok {
			t.Error("expected deleted file to fail verification")
		}
	})
}
