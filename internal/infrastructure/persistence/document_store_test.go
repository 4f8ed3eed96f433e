package persistence

import (
	"context"
	"database/sql"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/erp/weclapp-migration/internal/domain/migration"
)

func customerFields(name string) migration.Fields {
	return migration.Fields{
		"name":          name,
		"customer_name": "ACME GmbH",
		"customer_type": "Company",
	}
}

func TestDocumentStore_Create(t *testing.T) {
	ctx := context.Background()

	t.Run("stores name, provenance and fields", func(t *testing.T) {
		f := newStoreFixture(t)

		doc, err := f.store.Create(ctx, "Customer", "4711", customerFields("K-1000"))
		require.NoError(t, err)
		assert.Equal(t, "K-1000", doc.Name)
		assert.Equal(t, "4711", doc.ExternalID)
		assert.Equal(t, "ACME GmbH", doc.String("customer_name"))
		_, hasName := doc.Fields["name"]
		assert.False(t, hasName)

		found, err := f.store.FindByExternalID(ctx, "Customer", "4711")
		require.NoError(t, err)
		require.NotNil(t, found)
		assert.Equal(t, "K-1000", found.Name)

		got, err := f.store.Get(ctx, "Customer", "K-1000")
		require.NoError(t, err)
		assert.Equal(t, "Company", got.String("customer_type"))
	})

	t.Run("assigns a name from the naming series", func(t *testing.T) {
		f := newStoreFixture(t)

		doc, err := f.store.Create(ctx, "Contact", "1", migration.Fields{"first_name": "Erika"})
		require.NoError(t, err)
		assert.True(t, strings.HasPrefix(doc.Name, "CONT-"), doc.Name)

		other, err := f.store.Create(ctx, "Contact", "2", migration.Fields{"first_name": "Max"})
		require.NoError(t, err)
		assert.NotEqual(t, doc.Name, other.Name)
	})

	t.Run("rejects a second document with the same provenance", func(t *testing.T) {
		f := newStoreFixture(t)

		_, err := f.store.Create(ctx, "Customer", "4711", customerFields("K-1000"))
		require.NoError(t, err)
		_, err = f.store.Create(ctx, "Customer", "4711", customerFields("K-2000"))
		assert.ErrorIs(t, err, migration.ErrDuplicateIdentity)
	})

	t.Run("rejects a duplicate name", func(t *testing.T) {
		f := newStoreFixture(t)

		_, err := f.store.Create(ctx, "Customer", "1", customerFields("K-1000"))
		require.NoError(t, err)
		_, err = f.store.Create(ctx, "Customer", "2", customerFields("K-1000"))
		assert.ErrorIs(t, err, migration.ErrDuplicateIdentity)
	})

	t.Run("same external id in different doctypes", func(t *testing.T) {
		f := newStoreFixture(t)

		_, err := f.store.Create(ctx, "Customer", "1", customerFields("K-1"))
		require.NoError(t, err)
		_, err = f.store.Create(ctx, "Lead", "1", migration.Fields{"name": "L-1", "status": "Open"})
		assert.NoError(t, err)
	})

	t.Run("documents without provenance never collide", func(t *testing.T) {
		f := newStoreFixture(t)

		_, err := f.store.Create(ctx, "Contact", "", migration.Fields{"first_name": "A"})
		require.NoError(t, err)
		_, err = f.store.Create(ctx, "Contact", "", migration.Fields{"first_name": "B"})
		require.NoError(t, err)

		docs, err := f.store.ListWithProvenance(ctx, "Contact")
		require.NoError(t, err)
		assert.Empty(t, docs)
	})

	t.Run("validates mandatory fields", func(t *testing.T) {
		f := newStoreFixture(t)

		_, err := f.store.Create(ctx, "Customer", "1", migration.Fields{"name": "K-1", "customer_name": "  "})
		require.ErrorIs(t, err, migration.ErrMissingRequiredField)
		assert.Contains(t, err.Error(), "customer_name")
		assert.Contains(t, err.Error(), "customer_type")
	})
}

func TestDocumentStore_Update(t *testing.T) {
	ctx := context.Background()
	f := newStoreFixture(t)

	doc, err := f.store.Create(ctx, "Customer", "1", migration.Fields{
		"name":          "K-1",
		"customer_name": "ACME",
		"customer_type": "Company",
		"website":       "acme.example",
	})
	require.NoError(t, err)

	updated, err := f.store.Update(ctx, doc, migration.Fields{
		"customer_primary_contact": "CONT-1",
		"website":                  nil,
	})
	require.NoError(t, err)
	assert.Same(t, doc, updated)
	assert.Equal(t, "CONT-1", doc.String("customer_primary_contact"))
	assert.Nil(t, doc.Fields["website"])

	got, err := f.store.Get(ctx, "Customer", "K-1")
	require.NoError(t, err)
	assert.Equal(t, "ACME", got.String("customer_name"))
	assert.Equal(t, "CONT-1", got.String("customer_primary_contact"))

	_, err = f.store.Update(ctx, &migration.Document{Doctype: "Customer", Name: "missing"}, migration.Fields{})
	assert.ErrorIs(t, err, migration.ErrNotFound)
}

func TestDocumentStore_Lookup(t *testing.T) {
	ctx := context.Background()
	f := newStoreFixture(t)

	_, err := f.store.Create(ctx, "Country", "", migration.Fields{"name": "Germany", "code": "de"})
	require.NoError(t, err)
	_, err = f.store.Create(ctx, "Country", "", migration.Fields{"name": "Austria", "code": "at"})
	require.NoError(t, err)

	country, err := f.store.Lookup(ctx, "Country", "code", "de")
	require.NoError(t, err)
	require.NotNil(t, country)
	assert.Equal(t, "Germany", country.Name)

	byName, err := f.store.Lookup(ctx, "Country", "name", "Austria")
	require.NoError(t, err)
	require.NotNil(t, byName)
	assert.Equal(t, "at", byName.String("code"))

	missing, err := f.store.Lookup(ctx, "Country", "code", "xx")
	require.NoError(t, err)
	assert.Nil(t, missing)

	_, err = f.store.Get(ctx, "Country", "France")
	assert.ErrorIs(t, err, migration.ErrNotFound)
}

func TestDocumentStore_Tags(t *testing.T) {
	ctx := context.Background()
	f := newStoreFixture(t)

	doc, err := f.store.Create(ctx, "Customer", "1", customerFields("K-1"))
	require.NoError(t, err)

	require.NoError(t, f.store.AddTag(ctx, doc, "VIP"))
	require.NoError(t, f.store.AddTag(ctx, doc, "Messe"))
	require.NoError(t, f.store.AddTag(ctx, doc, "VIP"))

	tags, err := f.store.Tags(ctx, doc)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"VIP", "Messe"}, tags)
}

func TestDocumentStore_Links(t *testing.T) {
	ctx := context.Background()
	f := newStoreFixture(t)

	link := migration.Link{ParentType: "Customer", ParentName: "K-1", ChildType: "Contact", ChildName: "CONT-1"}
	first, err := f.store.CreateLink(ctx, link)
	require.NoError(t, err)
	second, err := f.store.CreateLink(ctx, link)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	_, err = f.store.CreateLink(ctx, migration.Link{ParentType: "Customer", ParentName: "K-1", ChildType: "Address", ChildName: "ADDR-1"})
	require.NoError(t, err)

	all, err := f.store.FindLinks(ctx, "Customer", "K-1", "")
	require.NoError(t, err)
	assert.Len(t, all, 2)

	contacts, err := f.store.FindLinks(ctx, "Customer", "K-1", "Contact")
	require.NoError(t, err)
	require.Len(t, contacts, 1)
	assert.Equal(t, "CONT-1", contacts[0].ChildName)

	require.NoError(t, f.store.DeleteLink(ctx, contacts[0]))
	contacts, err = f.store.FindLinks(ctx, "Customer", "K-1", "Contact")
	require.NoError(t, err)
	assert.Empty(t, contacts)
}

func TestDocumentStore_Delete(t *testing.T) {
	ctx := context.Background()

	t.Run("refuses while children are linked", func(t *testing.T) {
		f := newStoreFixture(t)
		customer, err := f.store.Create(ctx, "Customer", "1", customerFields("K-1"))
		require.NoError(t, err)
		contact, err := f.store.Create(ctx, "Contact", "", migration.Fields{"first_name": "Erika"})
		require.NoError(t, err)
		_, err = f.store.CreateLink(ctx, migration.Link{
			ParentType: "Customer", ParentName: customer.Name,
			ChildType: "Contact", ChildName: contact.Name,
		})
		require.NoError(t, err)

		assert.ErrorIs(t, f.store.Delete(ctx, customer), migration.ErrLinkExists)

		// Deleting the child drops its inbound link and frees the parent.
		require.NoError(t, f.store.Delete(ctx, contact))
		require.NoError(t, f.store.Delete(ctx, customer))
		_, err = f.store.Get(ctx, "Customer", "K-1")
		assert.ErrorIs(t, err, migration.ErrNotFound)
	})

	t.Run("refuses while a link field references the document", func(t *testing.T) {
		f := newStoreFixture(t)
		contact, err := f.store.Create(ctx, "Contact", "", migration.Fields{"first_name": "Erika"})
		require.NoError(t, err)
		fields := customerFields("K-1")
		fields["customer_primary_contact"] = contact.Name
		customer, err := f.store.Create(ctx, "Customer", "1", fields)
		require.NoError(t, err)

		assert.ErrorIs(t, f.store.Delete(ctx, contact), migration.ErrLinkExists)

		_, err = f.store.Update(ctx, customer, migration.Fields{"customer_primary_contact": nil})
		require.NoError(t, err)
		assert.NoError(t, f.store.Delete(ctx, contact))
	})

	t.Run("dynamic links only match their own doctype", func(t *testing.T) {
		f := newStoreFixture(t)
		customer, err := f.store.Create(ctx, "Customer", "1", customerFields("SAME-1"))
		require.NoError(t, err)
		_, err = f.store.Create(ctx, "Opportunity", "9", migration.Fields{
			"opportunity_from": "Lead",
			"party_name":       "SAME-1",
			"status":           "Open",
		})
		require.NoError(t, err)

		assert.NoError(t, f.store.Delete(ctx, customer))
	})

	t.Run("removes tags and files", func(t *testing.T) {
		f := newStoreFixture(t)
		customer, err := f.store.Create(ctx, "Customer", "1", customerFields("K-1"))
		require.NoError(t, err)
		require.NoError(t, f.store.AddTag(ctx, customer, "VIP"))
		file, err := f.store.AttachFile(ctx, customer, "Home", "a.txt", []byte("hello"), true)
		require.NoError(t, err)

		require.NoError(t, f.store.Delete(ctx, customer))
		assert.True(t, f.blobs.has(file.StorageKey), "blob stays until commit")
		require.NoError(t, f.store.Commit(ctx))
		assert.False(t, f.blobs.has(file.StorageKey))

		tags, err := f.store.Tags(ctx, customer)
		require.NoError(t, err)
		assert.Empty(t, tags)
		exists, err := f.store.FileExists(ctx, "Home", "a.txt")
		require.NoError(t, err)
		assert.False(t, exists)
	})
}

func TestDocumentStore_Files(t *testing.T) {
	ctx := context.Background()
	f := newStoreFixture(t)

	customer, err := f.store.Create(ctx, "Customer", "1", customerFields("K-1"))
	require.NoError(t, err)

	root, err := f.store.EnsureFolder(ctx, "Home", "Attachments")
	require.NoError(t, err)
	assert.Equal(t, "Home/Attachments", root)
	again, err := f.store.EnsureFolder(ctx, "Home", "Attachments")
	require.NoError(t, err)
	assert.Equal(t, root, again)
	folder, err := f.store.EnsureFolder(ctx, root, "Customer")
	require.NoError(t, err)

	file, err := f.store.AttachFile(ctx, customer, folder, "offer.pdf", []byte("%PDF-1.4 test"), true)
	require.NoError(t, err)
	assert.True(t, file.Private)
	assert.Equal(t, int64(13), file.Size)
	assert.Equal(t, "private/Home/Attachments/Customer/offer.pdf", file.StorageKey)
	assert.Equal(t, "application/pdf", f.blobs.types[file.StorageKey])

	exists, err := f.store.FileExists(ctx, folder, "offer.pdf")
	require.NoError(t, err)
	assert.True(t, exists)

	dup, err := f.store.AttachFile(ctx, customer, folder, "offer.pdf", []byte("other"), true)
	require.NoError(t, err)
	assert.Equal(t, file.ID, dup.ID)
	assert.Equal(t, int64(13), dup.Size)
}

func TestDocumentStore_Savepoints(t *testing.T) {
	ctx := context.Background()
	f := newStoreFixture(t)

	kept, err := f.store.Create(ctx, "Customer", "1", customerFields("K-1"))
	require.NoError(t, err)

	sp, err := f.store.Savepoint(ctx)
	require.NoError(t, err)
	_, err = f.store.Create(ctx, "Customer", "2", customerFields("K-2"))
	require.NoError(t, err)
	_, err = f.store.AttachFile(ctx, kept, "Home", "x.txt", []byte("x"), true)
	require.NoError(t, err)
	require.NoError(t, f.store.RollbackTo(ctx, sp))
	require.NoError(t, f.store.Commit(ctx))

	_, err = f.store.Get(ctx, "Customer", "K-1")
	assert.NoError(t, err)
	_, err = f.store.Get(ctx, "Customer", "K-2")
	assert.ErrorIs(t, err, migration.ErrNotFound)
	exists, err := f.store.FileExists(ctx, "Home", "x.txt")
	require.NoError(t, err)
	assert.False(t, exists)

	assert.Error(t, f.store.RollbackTo(ctx, "sp_unknown"))
}

func TestUnitOfWork_AfterCommitHooks(t *testing.T) {
	ctx := context.Background()
	f := newStoreFixture(t)

	var ran []string
	f.uow.AfterCommit(func() { ran = append(ran, "immediate") })
	assert.Equal(t, []string{"immediate"}, ran)

	_, err := f.uow.Writer(ctx)
	require.NoError(t, err)
	f.uow.AfterCommit(func() { ran = append(ran, "kept") })
	sp, err := f.uow.Savepoint(ctx)
	require.NoError(t, err)
	f.uow.AfterCommit(func() { ran = append(ran, "dropped") })
	require.NoError(t, f.uow.RollbackTo(ctx, sp))
	assert.True(t, f.uow.InTransaction())

	require.NoError(t, f.uow.Commit(ctx))
	assert.Equal(t, []string{"immediate", "kept"}, ran)
	assert.False(t, f.uow.InTransaction())
}

func newMockStore(t *testing.T) (*DocumentStore, sqlmock.Sqlmock, *sql.DB) {
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)

	gormDB, err := gorm.Open(postgres.New(postgres.Config{
		Conn:       mockDB,
		DriverName: "postgres",
	}), &gorm.Config{SkipDefaultTransaction: true})
	require.NoError(t, err)

	return NewDocumentStore(NewUnitOfWork(gormDB), newMemBlobs()), mock, mockDB
}

func TestDocumentStore_LookupQueriesJSONField(t *testing.T) {
	store, mock, mockDB := newMockStore(t)
	defer mockDB.Close()

	now := time.Now()
	rows := sqlmock.NewRows([]string{"id", "created_at", "updated_at", "doctype", "name", "external_id", "fields"}).
		AddRow("7d0c3b2e-4a65-4b6f-9a52-1d5f3c0b9e11", now, now, "Country", "Germany", nil, []byte(`{"code":"de"}`))

	mock.ExpectQuery(`SELECT \* FROM "documents" WHERE doctype = \$1 AND json_extract_path_text\("fields"::json,\$2\) = \$3 ORDER BY created_at.* LIMIT \$4`).
		WithArgs("Country", "code", "de", 1).
		WillReturnRows(rows)

	doc, err := store.Lookup(context.Background(), "Country", "code", "de")
	require.NoError(t, err)
	require.NotNil(t, doc)
	assert.Equal(t, "Germany", doc.Name)
	assert.Equal(t, "de", doc.String("code"))
	assert.NoError(t, mock.ExpectationsWereMet())
}
