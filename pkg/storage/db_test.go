package storage

import (
	"time"

	"github.com/sirupsen/logrus"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Database Configuration", func() {
	Describe("DefaultConfig", func() {
		It("returns the event plane's relational store defaults", func() {
			config := DefaultConfig()

			Expect(config.Host).To(Equal("localhost"))
			Expect(config.Port).To(Equal(5432))
			Expect(config.User).To(Equal("eventplane"))
			Expect(config.Database).To(Equal("eventplane"))
			Expect(config.SSLMode).To(Equal("disable"))
			Expect(config.MaxOpenConns).To(Equal(25))
			Expect(config.MaxIdleConns).To(Equal(5))
			Expect(config.ConnMaxLifetime).To(Equal(5 * time.Minute))
			Expect(config.ConnMaxIdleTime).To(Equal(5 * time.Minute))
		})
	})

	Describe("Validate", func() {
		var config *Config

		BeforeEach(func() {
			config = DefaultConfig()
		})

		It("passes for a valid config", func() {
			Expect(config.Validate()).NotTo(HaveOccurred())
		})

		It("rejects an empty host", func() {
			config.Host = ""
			Expect(config.Validate()).To(MatchError(ContainSubstring("database host is required")))
		})

		It("rejects an out-of-range port", func() {
			config.Port = 0
			Expect(config.Validate()).To(MatchError(ContainSubstring("database port must be between 1 and 65535")))

			config.Port = 70000
			Expect(config.Validate()).To(MatchError(ContainSubstring("database port must be between 1 and 65535")))
		})

		It("rejects an empty user", func() {
			config.User = ""
			Expect(config.Validate()).To(MatchError(ContainSubstring("database user is required")))
		})

		It("rejects an empty database name", func() {
			config.Database = ""
			Expect(config.Validate()).To(MatchError(ContainSubstring("database name is required")))
		})

		It("rejects a non-positive max open conns", func() {
			config.MaxOpenConns = 0
			Expect(config.Validate()).To(MatchError(ContainSubstring("max open connections must be greater than 0")))
		})

		It("rejects a negative max idle conns", func() {
			config.MaxIdleConns = -1
			Expect(config.Validate()).To(MatchError(ContainSubstring("max idle connections must be non-negative")))
		})
	})

	Describe("ConnectionString", func() {
		It("includes the password when set", func() {
			config := &Config{Host: "localhost", Port: 5432, User: "u", Database: "d", SSLMode: "disable", Password: "p"}
			Expect(config.ConnectionString()).To(Equal(
				"host=localhost port=5432 user=u dbname=d sslmode=disable password=p"))
		})

		It("omits the password when unset", func() {
			config := &Config{Host: "localhost", Port: 5432, User: "u", Database: "d", SSLMode: "disable"}
			result := config.ConnectionString()
			Expect(result).NotTo(ContainSubstring("password="))
		})
	})

	Describe("Connect", func() {
		It("rejects an invalid configuration before dialing", func() {
			logger := logrus.New()
			logger.SetLevel(logrus.FatalLevel)

			_, err := Connect(&Config{Host: "", Port: 5432, User: "u"}, logger)
			Expect(err).To(MatchError(ContainSubstring("invalid database configuration")))
		})
	})
})
