package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"webhook-ingest/backend/internal/models"
	"webhook-ingest/backend/pkg/logger"
	"webhook-ingest/backend/pkg/resilience"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"
)

// Options configures Open
type Options struct {
	URL            string
	MaxConns       int
	OpTimeout      time.Duration
	ConnectRetries int
	RetryDelay     time.Duration
	// Verbose logs every SQL statement
	Verbose bool
	Logger  *logger.Logger
	// Breaker guards every call except Ping; nil installs a default one
	Breaker *resilience.CircuitBreaker
}

// GormStore implements MessageStore on top of GORM
type GormStore struct {
	db        *gorm.DB
	dialect   Dialect
	opTimeout time.Duration
	breaker   *resilience.CircuitBreaker
	log       *logger.Logger
	opLatency metric.Float64Histogram
	now       func() time.Time
}

var _ MessageStore = (*GormStore)(nil)

// Open connects to the database named by opts.URL, retrying while it comes
// up, and applies the schema
func Open(ctx context.Context, opts Options) (*GormStore, error) {
	if opts.Logger == nil {
		opts.Logger = logger.GetGlobal()
	}

	dialect, dsn, err := ParseURL(opts.URL)
	if err != nil {
		return nil, err
	}

	var dialector gorm.Dialector
	switch dialect {
	case DialectSQLite:
		if err := ensureDir(dsn); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
		dialector = sqlite.Open(dsn)
	case DialectPostgres:
		dialector = postgres.Open(dsn)
	}

	gormConfig := &gorm.Config{
		TranslateError: true,
		Logger:         gormlogger.Default.LogMode(gormlogger.Error),
		NowFunc:        func() time.Time { return time.Now().UTC() },
	}
	if opts.Verbose {
		gormConfig.Logger = gormlogger.Default.LogMode(gormlogger.Info)
	}

	retries := opts.ConnectRetries
	if retries < 1 {
		retries = 1
	}

	var db *gorm.DB
	for i := 0; i < retries; i++ {
		db, err = gorm.Open(dialector, gormConfig)
		if err == nil {
			break
		}

		opts.Logger.Warn("Failed to connect to database",
			"dialect", string(dialect),
			"attempt", i+1,
			"error", err.Error(),
		)
		if i == retries-1 {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(opts.RetryDelay):
		}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database after %d attempts: %w", retries, err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database connection: %w", err)
	}

	if dialect == DialectSQLite {
		// SQLite allows one writer; a single connection serialises access
		// instead of surfacing SQLITE_BUSY, and keeps :memory: databases alive.
		sqlDB.SetMaxOpenConns(1)
		sqlDB.SetConnMaxLifetime(0)
	} else {
		maxConns := opts.MaxConns
		if maxConns <= 0 {
			maxConns = 20
		}
		sqlDB.SetMaxIdleConns(maxConns / 2)
		sqlDB.SetMaxOpenConns(maxConns)
		sqlDB.SetConnMaxLifetime(time.Hour)
		sqlDB.SetConnMaxIdleTime(10 * time.Minute)
	}

	breaker := opts.Breaker
	if breaker == nil {
		breaker = resilience.NewCircuitBreaker(resilience.DefaultCircuitBreakerConfig("message-store"), opts.Logger)
	}

	opLatency, err := otel.Meter("webhook-ingest/backend/internal/store").Float64Histogram(
		"store.operation.duration",
		metric.WithDescription("Duration of message store operations"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("create store histogram: %w", err)
	}

	s := &GormStore{
		db:        db,
		dialect:   dialect,
		opTimeout: opts.OpTimeout,
		breaker:   breaker,
		log:       opts.Logger,
		opLatency: opLatency,
		now:       func() time.Time { return time.Now().UTC() },
	}

	if err := s.Migrate(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, err
	}

	opts.Logger.Info("Message store ready", "dialect", string(dialect))
	return s, nil
}

// Dialect reports the engine in use
func (s *GormStore) Dialect() Dialect {
	return s.dialect
}

// Migrate creates the messages table and its indexes
func (s *GormStore) Migrate(ctx context.Context) error {
	if err := s.db.WithContext(ctx).AutoMigrate(&models.Message{}); err != nil {
		return fmt.Errorf("%w: migrate: %w", ErrUnavailable, err)
	}
	return nil
}

// run executes fn through the breaker with the per-operation timeout and
// records its latency. Any failure comes back wrapped in ErrUnavailable.
func (s *GormStore) run(ctx context.Context, op string, fn func(db *gorm.DB) error) error {
	if s.opTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opTimeout)
		defer cancel()
	}

	start := time.Now()
	err := s.breaker.Execute(func() error {
		return fn(s.db.WithContext(ctx))
	})
	s.opLatency.Record(ctx, time.Since(start).Seconds(), metric.WithAttributes(
		attribute.String("operation", op),
		attribute.Bool("error", err != nil),
	))

	if err != nil {
		logger.FromContextOr(ctx, s.log).Error("Store operation failed",
			"operation", op,
			"dialect", string(s.dialect),
			"error", err.Error(),
		)
		return fmt.Errorf("%w: %s: %w", ErrUnavailable, op, err)
	}
	return nil
}

// readTx returns options for a consistent read-only snapshot
func (s *GormStore) readTx() []*sql.TxOptions {
	if s.dialect == DialectPostgres {
		return []*sql.TxOptions{{Isolation: sql.LevelRepeatableRead, ReadOnly: true}}
	}
	// SQLite: a deferred transaction in WAL mode already reads one snapshot
	return nil
}

// InsertIfAbsent stores msg with a single INSERT ... ON CONFLICT DO NOTHING,
// so uniqueness is decided by the primary key and never by a prior lookup
func (s *GormStore) InsertIfAbsent(ctx context.Context, msg *models.Message) (InsertResult, error) {
	row := *msg
	row.Ts = row.Ts.UTC()
	row.CreatedAt = s.now()

	result := InsertCreated
	err := s.run(ctx, "insert", func(db *gorm.DB) error {
		res := db.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "message_id"}},
			DoNothing: true,
		}).Create(&row)
		if res.Error != nil {
			if errors.Is(res.Error, gorm.ErrDuplicatedKey) {
				result = InsertDuplicate
				return nil
			}
			return res.Error
		}
		if res.RowsAffected == 0 {
			result = InsertDuplicate
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	if result == InsertCreated {
		msg.Ts = row.Ts
		msg.CreatedAt = row.CreatedAt
	}
	return result, nil
}

// escapeLike makes %, _ and the escape character itself match literally
func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

func filterScope(f models.MessageFilter) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		if f.From != "" {
			db = db.Where("from_msisdn = ?", f.From)
		}
		if f.Since != nil {
			db = db.Where("ts >= ?", f.Since.UTC())
		}
		if f.Query != "" {
			// Both sides go through the engine's LOWER so folding is symmetric
			db = db.Where(`LOWER(text) LIKE LOWER(?) ESCAPE '\'`, "%"+escapeLike(f.Query)+"%")
		}
		return db
	}
}

// List returns one page and the filtered total, read in one transaction
func (s *GormStore) List(ctx context.Context, filter models.MessageFilter, limit, offset int) ([]models.Message, int64, error) {
	var (
		page  []models.Message
		total int64
	)

	err := s.run(ctx, "list", func(db *gorm.DB) error {
		return db.Transaction(func(tx *gorm.DB) error {
			if err := tx.Model(&models.Message{}).Scopes(filterScope(filter)).Count(&total).Error; err != nil {
				return err
			}
			return tx.Scopes(filterScope(filter)).
				Order("ts ASC").
				Order("message_id ASC").
				Limit(limit).
				Offset(offset).
				Find(&page).Error
		}, s.readTx()...)
	})
	if err != nil {
		return nil, 0, err
	}

	if page == nil {
		page = []models.Message{}
	}
	for i := range page {
		page[i].Ts = page[i].Ts.UTC()
		page[i].CreatedAt = page[i].CreatedAt.UTC()
	}
	return page, total, nil
}

// Aggregate computes statistics over the whole table in one transaction
func (s *GormStore) Aggregate(ctx context.Context) (*models.Stats, error) {
	stats := &models.Stats{MessagesPerSender: []models.SenderCount{}}

	err := s.run(ctx, "aggregate", func(db *gorm.DB) error {
		return db.Transaction(func(tx *gorm.DB) error {
			if err := tx.Model(&models.Message{}).Count(&stats.TotalMessages).Error; err != nil {
				return err
			}
			if stats.TotalMessages == 0 {
				return nil
			}

			if err := tx.Model(&models.Message{}).Distinct("from_msisdn").Count(&stats.SendersCount).Error; err != nil {
				return err
			}

			if err := tx.Model(&models.Message{}).
				Select("from_msisdn AS sender, COUNT(*) AS count").
				Group("from_msisdn").
				Order("COUNT(*) DESC").
				Order("from_msisdn ASC").
				Limit(10).
				Scan(&stats.MessagesPerSender).Error; err != nil {
				return err
			}

			// Ordered single-row reads keep the column type, unlike MIN/MAX
			var first, last models.Message
			if err := tx.Select("ts").Order("ts ASC").Order("message_id ASC").Take(&first).Error; err != nil {
				return err
			}
			if err := tx.Select("ts").Order("ts DESC").Order("message_id DESC").Take(&last).Error; err != nil {
				return err
			}
			firstTs, lastTs := first.Ts.UTC(), last.Ts.UTC()
			stats.FirstMessageTs = &firstTs
			stats.LastMessageTs = &lastTs
			return nil
		}, s.readTx()...)
	})
	if err != nil {
		return nil, err
	}
	return stats, nil
}

// Ping checks connectivity. It bypasses the breaker so readiness reflects
// the database itself.
func (s *GormStore) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	if err := s.db.WithContext(ctx).Exec("SELECT 1").Error; err != nil {
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	return nil
}

// Close releases the connection pool
func (s *GormStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
