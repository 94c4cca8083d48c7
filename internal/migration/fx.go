package migration

import (
	"github.com/bwmarrin/snowflake"
	branddomain "github.com/smallbiznis/perkly/internal/brand/domain"
	carddomain "github.com/smallbiznis/perkly/internal/card/domain"
	"github.com/smallbiznis/perkly/internal/config"
	customerdomain "github.com/smallbiznis/perkly/internal/customer/domain"
	"github.com/smallbiznis/perkly/internal/events"
	orgdomain "github.com/smallbiznis/perkly/internal/organization/domain"
	programdomain "github.com/smallbiznis/perkly/internal/program/domain"
	"github.com/smallbiznis/perkly/internal/seed"
	storedomain "github.com/smallbiznis/perkly/internal/store/domain"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB, cfg config.Config, genID *snowflake.Node) error {
		if cfg.DBType == "postgres" {
			sqlDB, err := conn.DB()
			if err != nil {
				return err
			}
			if err := RunMigrations(sqlDB); err != nil {
				return err
			}
		} else {
			if err := AutoMigrate(conn); err != nil {
				return err
			}
		}

		if cfg.DefaultOrgID != 0 {
			return seed.EnsureMainOrgWithID(conn, cfg.DefaultOrgID)
		}
		return seed.EnsureMainOrg(conn, genID)
	}),
)

// AutoMigrate builds the schema from the models. Used for mysql and sqlite,
// and by tests.
func AutoMigrate(conn *gorm.DB) error {
	return conn.AutoMigrate(
		&orgdomain.Organization{},
		&branddomain.Brand{},
		&storedomain.Store{},
		&customerdomain.Customer{},
		&programdomain.LoyaltyProgram{},
		&programdomain.Reward{},
		&carddomain.LoyaltyCard{},
		&carddomain.Transaction{},
		&events.Record{},
	)
}
