package storage

import (
	"context"
	"database/sql"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("ProducerRepo", func() {
	var (
		mockDB *sql.DB
		mock   sqlmock.Sqlmock
		repo   *ProducerRepo
		ctx    context.Context
	)

	BeforeEach(func() {
		var err error
		mockDB, mock, err = sqlmock.New()
		Expect(err).ToNot(HaveOccurred())

		repo = NewProducerRepo(sqlx.NewDb(mockDB, "pgx"))
		ctx = context.Background()
	})

	AfterEach(func() {
		mockDB.Close()
	})

	Describe("Register", func() {
		It("upserts the registration row", func() {
			mock.ExpectExec("INSERT INTO producer_registrations").
				WithArgs("prod-1", "tenant-a", "sin", sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), "active").
				WillReturnResult(sqlmock.NewResult(0, 1))

			err := repo.Register(ctx, &ProducerRegistration{
				ProducerID:         "prod-1",
				TenantID:           "tenant-a",
				Plane:              "sin",
				AllowedSignalKinds: []string{"event"},
				AllowedSignalTypes: []string{"pr_opened"},
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(mock.ExpectationsWereMet()).To(Succeed())
		})
	})

	Describe("Get", func() {
		It("returns a not-found error when absent", func() {
			mock.ExpectQuery("SELECT \\* FROM producer_registrations").
				WithArgs("missing").
				WillReturnError(sql.ErrNoRows)

			_, err := repo.Get(ctx, "missing")
			Expect(err).To(HaveOccurred())
		})
	})

	Describe("UpdateStatus", func() {
		It("returns a not-found error when no row matched", func() {
			mock.ExpectExec("UPDATE producer_registrations").
				WithArgs("missing", "suspended").
				WillReturnResult(sqlmock.NewResult(0, 0))

			err := repo.UpdateStatus(ctx, "missing", "suspended")
			Expect(err).To(HaveOccurred())
		})
	})
})
