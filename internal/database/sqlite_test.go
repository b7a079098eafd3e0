package database_test

import (
	"testing"
	"time"

	"obs-go/internal/model"
	"obs-go/internal/testutil"
)

var fixedTime = time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC)

func TestIdentityKeys(t *testing.T) {
	db := testutil.NewTestDatabase(t)

	t.Run("empty store has no key", func(t *testing.T) {
		pair, err := db.FindIdentityKey()
		if err != nil {
			t.Fatalf("FindIdentityKey: %v", err)
		}
		if pair != nil {
			t.Errorf("pair = %+v, want nil", pair)
		}
	})

	t.Run("create and find", func(t *testing.T) {
		created, err := db.CreateIdentityKey("-----BEGIN PUBLIC KEY-----\nAAAA\n-----END PUBLIC KEY-----\n", fixedTime)
		if err != nil {
			t.Fatalf("CreateIdentityKey: %v", err)
		}
		if created.KID == 0 {
			t.Error("KID = 0, want assigned id")
		}

		found, err := db.FindIdentityKey()
		if err != nil {
			t.Fatalf("FindIdentityKey: %v", err)
		}
		if found == nil || found.KID != created.KID {
			t.Errorf("found = %+v, want KID %d", found, created.KID)
		}
		if !found.CreatedAt.Equal(fixedTime) {
			t.Errorf("CreatedAt = %v, want %v", found.CreatedAt, fixedTime)
		}
	})

	t.Run("second key is rejected", func(t *testing.T) {
		_, err := db.CreateIdentityKey("another", fixedTime)
		if err == nil {
			t.Fatal("expected constraint violation for second identity key")
		}
	})
}

func TestCertificates(t *testing.T) {
	db := testutil.NewTestDatabase(t)

	t.Run("no certificate yet", func(t *testing.T) {
		cert, err := db.LatestCertificate()
		if err != nil {
			t.Fatalf("LatestCertificate: %v", err)
		}
		if cert != nil {
			t.Errorf("cert = %+v, want nil", cert)
		}
	})

	t.Run("latest wins", func(t *testing.T) {
		first := &model.Certificate{Token: "tok-1", IssuedAt: fixedTime, ExpiresAt: fixedTime.Add(24 * time.Hour)}
		second := &model.Certificate{Token: "tok-2", IssuedAt: fixedTime.Add(time.Hour), ExpiresAt: fixedTime.Add(25 * time.Hour)}
		if err := db.SaveCertificate(first); err != nil {
			t.Fatalf("SaveCertificate: %v", err)
		}
		if err := db.SaveCertificate(second); err != nil {
			t.Fatalf("SaveCertificate: %v", err)
		}

		latest, err := db.LatestCertificate()
		if err != nil {
			t.Fatalf("LatestCertificate: %v", err)
		}
		if latest.Token != "tok-2" {
			t.Errorf("Token = %q, want tok-2", latest.Token)
		}
	})
}

func TestLabelSnapshot(t *testing.T) {
	db := testutil.NewTestDatabase(t)

	t.Run("empty store", func(t *testing.T) {
		labels, fetchedAt, err := db.LoadLabelSnapshot()
		if err != nil {
			t.Fatalf("LoadLabelSnapshot: %v", err)
		}
		if labels != nil || !fetchedAt.IsZero() {
			t.Errorf("labels = %v, fetchedAt = %v, want empty", labels, fetchedAt)
		}
	})

	t.Run("save and load", func(t *testing.T) {
		labels := []model.Label{
			{LabelID: "species", Type: model.LabelText, Required: true},
			{LabelID: "kind", Type: model.LabelEnum, Options: []string{"sighting", "trace"}},
		}
		if err := db.SaveLabelSnapshot(labels, fixedTime); err != nil {
			t.Fatalf("SaveLabelSnapshot: %v", err)
		}

		got, fetchedAt, err := db.LoadLabelSnapshot()
		if err != nil {
			t.Fatalf("LoadLabelSnapshot: %v", err)
		}
		if len(got) != 2 || got[1].Options[1] != "trace" {
			t.Errorf("labels = %+v", got)
		}
		if !fetchedAt.Equal(fixedTime) {
			t.Errorf("fetchedAt = %v, want %v", fetchedAt, fixedTime)
		}
	})

	t.Run("save replaces previous snapshot", func(t *testing.T) {
		later := fixedTime.Add(25 * time.Hour)
		if err := db.SaveLabelSnapshot([]model.Label{{LabelID: "only", Type: model.LabelText}}, later); err != nil {
			t.Fatalf("SaveLabelSnapshot: %v", err)
		}

		got, fetchedAt, err := db.LoadLabelSnapshot()
		if err != nil {
			t.Fatalf("LoadLabelSnapshot: %v", err)
		}
		if len(got) != 1 || got[0].LabelID != "only" {
			t.Errorf("labels = %+v, want single label only", got)
		}
		if !fetchedAt.Equal(later) {
			t.Errorf("fetchedAt = %v, want %v", fetchedAt, later)
		}
	})
}

func TestPackages(t *testing.T) {
	db := testutil.NewTestDatabase(t)

	newPackage := func(id string, createdAt time.Time) *model.EventPackage {
		return &model.EventPackage{
			ID:      id,
			Version: model.PackageVersion,
			Annotations: []model.EventAnnotation{
				{LabelID: "species", Value: model.TextValue("lynx lynx"), Timestamp: createdAt},
			},
			Metadata: model.PackageMeta{CreatedAt: createdAt, CreatedBy: "device-1", Source: "obs-cli"},
		}
	}

	t.Run("save and find round-trips payload", func(t *testing.T) {
		pkg := newPackage("pkg-1", fixedTime)
		if err := db.SavePackage(pkg); err != nil {
			t.Fatalf("SavePackage: %v", err)
		}

		found, err := db.FindPackageByID("pkg-1")
		if err != nil {
			t.Fatalf("FindPackageByID: %v", err)
		}
		if found == nil {
			t.Fatal("package not found")
		}
		if found.Version != model.PackageVersion || len(found.Annotations) != 1 {
			t.Errorf("found = %+v", found)
		}
		if found.Annotations[0].Value.Text != "lynx lynx" {
			t.Errorf("annotation value = %+v", found.Annotations[0].Value)
		}
	})

	t.Run("unknown id returns nil", func(t *testing.T) {
		found, err := db.FindPackageByID("missing")
		if err != nil {
			t.Fatalf("FindPackageByID: %v", err)
		}
		if found != nil {
			t.Errorf("found = %+v, want nil", found)
		}
	})

	t.Run("mark exported", func(t *testing.T) {
		at := fixedTime.Add(time.Hour)
		if err := db.MarkPackageExported("pkg-1", at); err != nil {
			t.Fatalf("MarkPackageExported: %v", err)
		}

		records, err := db.ListPackages(10)
		if err != nil {
			t.Fatalf("ListPackages: %v", err)
		}
		if len(records) != 1 {
			t.Fatalf("got %d records, want 1", len(records))
		}
		if records[0].ExportedAt == nil || !records[0].ExportedAt.Equal(at) {
			t.Errorf("ExportedAt = %v, want %v", records[0].ExportedAt, at)
		}
	})

	t.Run("mark exported on unknown id fails", func(t *testing.T) {
		if err := db.MarkPackageExported("missing", fixedTime); err == nil {
			t.Fatal("expected error for unknown package id")
		}
	})

	t.Run("list orders newest first and honors limit", func(t *testing.T) {
		if err := db.SavePackage(newPackage("pkg-2", fixedTime.Add(2*time.Hour))); err != nil {
			t.Fatalf("SavePackage: %v", err)
		}
		if err := db.SavePackage(newPackage("pkg-3", fixedTime.Add(time.Hour))); err != nil {
			t.Fatalf("SavePackage: %v", err)
		}

		records, err := db.ListPackages(2)
		if err != nil {
			t.Fatalf("ListPackages: %v", err)
		}
		if len(records) != 2 {
			t.Fatalf("got %d records, want 2", len(records))
		}
		if records[0].ID != "pkg-2" || records[1].ID != "pkg-3" {
			t.Errorf("order = %s, %s; want pkg-2, pkg-3", records[0].ID, records[1].ID)
		}
	})

	t.Run("duplicate id is rejected", func(t *testing.T) {
		if err := db.SavePackage(newPackage("pkg-1", fixedTime)); err == nil {
			t.Fatal("expected primary key violation for duplicate package id")
		}
	})
}
