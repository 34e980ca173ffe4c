package testutil

import (
	"context"
	"time"

	"github.com/factuurly/factuurly/internal/cache"
	"github.com/factuurly/factuurly/internal/config"
	"github.com/factuurly/factuurly/internal/domain/invoice"
	"github.com/factuurly/factuurly/internal/domain/payment"
	"github.com/factuurly/factuurly/internal/logger"
	"github.com/factuurly/factuurly/internal/validator"
	"github.com/stretchr/testify/suite"
)

// Stores holds all the repository interfaces for testing
type Stores struct {
	InvoiceRepo invoice.Repository
	PaymentRepo payment.Repository
}

// BaseServiceTestSuite provides common functionality for all service test
// suites: in-memory stores, cache, pubsub and a context carrying the default
// tenant
type BaseServiceTestSuite struct {
	suite.Suite
	ctx    context.Context
	stores Stores
	pubsub *InMemoryPubSub
	cache  cache.Cache
	logger *logger.Logger
	config *config.Configuration
	now    time.Time
}

// SetupSuite is called once before running the tests in the suite
func (s *BaseServiceTestSuite) SetupSuite() {
	validator.NewValidator()

	s.config = config.GetDefaultConfig()

	var err error
	s.logger, err = logger.NewLogger(s.config)
	if err != nil {
		s.T().Fatalf("failed to create logger: %v", err)
	}
}

// SetupTest is called before each test
func (s *BaseServiceTestSuite) SetupTest() {
	s.ctx = SetupContext()
	s.now = time.Now().UTC()
	s.stores = Stores{
		InvoiceRepo: NewInMemoryInvoiceStore(),
		PaymentRepo: NewInMemoryPaymentStore(),
	}
	s.pubsub = NewInMemoryPubSub()
	s.cache = cache.NewInMemoryCache()
}

// TearDownTest is called after each test
func (s *BaseServiceTestSuite) TearDownTest() {
	s.cache.Flush(s.ctx)
}

func (s *BaseServiceTestSuite) GetContext() context.Context {
	return s.ctx
}

func (s *BaseServiceTestSuite) GetConfig() *config.Configuration {
	return s.config
}

func (s *BaseServiceTestSuite) GetStores() Stores {
	return s.stores
}

func (s *BaseServiceTestSuite) GetPubSub() *InMemoryPubSub {
	return s.pubsub
}

func (s *BaseServiceTestSuite) GetCache() cache.Cache {
	return s.cache
}

func (s *BaseServiceTestSuite) GetLogger() *logger.Logger {
	return s.logger
}

func (s *BaseServiceTestSuite) GetNow() time.Time {
	return s.now
}
