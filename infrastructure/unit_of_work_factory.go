package infrastructure

import (
	"metering/application"
	"metering/database"
	"metering/domain/interfaces"
	"metering/repository"
)

// UnitOfWorkFactory implements application.UnitOfWorkFactory. Every unit of
// work it creates carries its own transactional publisher, so events buffer
// and flush with the transaction they belong to.
type UnitOfWorkFactory struct {
	repoFactory interface {
		CreateWithPublisher(transactionalPublisher application.TransactionalEventPublisher) application.UnitOfWork
	}
	eventPublisher interfaces.EventPublisher
}

// NewUnitOfWorkFactory creates a new UnitOfWorkFactory
func NewUnitOfWorkFactory(db *database.DB, eventPublisher interfaces.EventPublisher) *UnitOfWorkFactory {
	return &UnitOfWorkFactory{
		repoFactory:    repository.NewUnitOfWorkFactory(db),
		eventPublisher: eventPublisher,
	}
}

// Create creates a new UnitOfWork with a fresh transactional event publisher
func (f *UnitOfWorkFactory) Create() application.UnitOfWork {
	transactionalPublisher := NewNATSTransactionalPublisher(f.eventPublisher)
	return f.repoFactory.CreateWithPublisher(transactionalPublisher)
}
