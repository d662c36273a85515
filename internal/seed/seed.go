// Package seed provides helpers to create demo review data for the
// application database. These helpers are intended for development and
// testing only.
package seed

import (
	"context"
	"fmt"
	"log"
	"math/rand"
	"time"

	"freightdesk/internal/models"
	"freightdesk/internal/repository"

	"github.com/brianvoe/gofakeit/v6"
	"gorm.io/gorm"
)

// Options configuration for the seeder.
type Options struct {
	NumCarriers   int
	NumDispatches int
	ShouldClean   bool
}

// Seeder builds demo workflow entities spread across every review stage.
type Seeder struct {
	workflowRepo repository.WorkflowRepository
	db           *gorm.DB
	rng          *rand.Rand
}

// NewSeeder creates a new Seeder bound to the provided Gorm DB.
func NewSeeder(db *gorm.DB) *Seeder {
	gofakeit.Seed(time.Now().UnixNano())
	return &Seeder{
		workflowRepo: repository.NewWorkflowRepository(db),
		db:           db,
		rng:          rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

var seedReviewers = []models.Actor{
	{ID: "seed-manager", Role: "manager", Capabilities: models.NewCapabilitySet(models.CapabilityManager)},
	{ID: "seed-accounts", Role: "accounts", Capabilities: models.NewCapabilitySet(models.CapabilityAccounts)},
	{ID: "seed-admin", Role: "admin", Capabilities: models.NewCapabilitySet(models.CapabilityAdmin)},
}

var rejectionReasons = []string{
	"missing insurance certificate",
	"operating authority could not be verified",
	"duplicate of an existing record",
	"rate confirmation does not match the tender",
	"incomplete compliance paperwork",
}

// Run populates the database with demo carriers and dispatches. Roughly a
// quarter of the entities land in each forward stage, with a sprinkling of
// disabled ones, so every dashboard view has something to show.
func (s *Seeder) Run(ctx context.Context, opts Options) error {
	log.Printf("seeding %d carriers and %d dispatches", opts.NumCarriers, opts.NumDispatches)

	if opts.ShouldClean {
		if err := s.ClearAll(); err != nil {
			return fmt.Errorf("clear existing data: %w", err)
		}
	}

	for i := 0; i < opts.NumCarriers; i++ {
		id := fmt.Sprintf("CAR-%04d", gofakeit.Number(1000, 9999))
		if err := s.seedEntity(ctx, models.EntityKindCarrier, id); err != nil {
			return fmt.Errorf("seed carrier %s: %w", id, err)
		}
	}
	for i := 0; i < opts.NumDispatches; i++ {
		id := fmt.Sprintf("DSP-%04d", gofakeit.Number(1000, 9999))
		if err := s.seedEntity(ctx, models.EntityKindDispatch, id); err != nil {
			return fmt.Errorf("seed dispatch %s: %w", id, err)
		}
	}

	log.Println("seeding complete")
	return nil
}

// ClearAll truncates the workflow tables.
func (s *Seeder) ClearAll() error {
	if err := s.db.Where("1 = 1").Delete(&models.AuditRecord{}).Error; err != nil {
		return err
	}
	return s.db.Where("1 = 1").Delete(&models.WorkflowEntity{}).Error
}

func (s *Seeder) seedEntity(ctx context.Context, kind models.EntityKind, entityID string) error {
	entity := &models.WorkflowEntity{EntityKind: kind, EntityID: entityID}
	if err := s.workflowRepo.Create(ctx, entity, seedReviewers[2]); err != nil {
		// Random IDs collide occasionally on the unique index; skip and move on.
		return nil
	}

	transitions := s.randomPath()
	for _, kindAndActor := range transitions {
		req := models.TransitionRequest{Kind: kindAndActor.transition, Notes: gofakeit.Sentence(6)}
		if kindAndActor.transition == models.TransitionReject {
			req.Reason = rejectionReasons[s.rng.Intn(len(rejectionReasons))]
		}

		decision, err := models.Evaluate(entity, req, kindAndActor.actor.Capabilities)
		if err != nil {
			return err
		}
		if decision.NoOp {
			continue
		}

		record := &models.AuditRecord{
			EntityKind: kind,
			EntityID:   entityID,
			Action:     decision.Action,
			ActorID:    kindAndActor.actor.ID,
			ActorRole:  kindAndActor.actor.Role,
			Notes:      req.Notes,
		}
		if decision.Action == models.ActionRejected {
			reason := req.Reason
			record.RejectionReason = &reason
		}

		entity, err = s.workflowRepo.ApplyTransition(ctx, entity, decision, record)
		if err != nil {
			return err
		}
	}

	return nil
}

type step struct {
	transition models.TransitionKind
	actor      models.Actor
}

// randomPath picks a legal transition sequence ending in one of the four
// stages, occasionally tacking on a disable.
func (s *Seeder) randomPath() []step {
	manager := seedReviewers[0]
	accounts := seedReviewers[1]
	admin := seedReviewers[2]

	var steps []step
	switch s.rng.Intn(4) {
	case 0: // stay pending
	case 1:
		steps = append(steps, step{models.TransitionApproveManager, manager})
	case 2:
		steps = append(steps,
			step{models.TransitionApproveManager, manager},
			step{models.TransitionApproveAccounts, accounts},
		)
	case 3:
		if s.rng.Intn(2) == 0 {
			steps = append(steps, step{models.TransitionReject, manager})
		} else {
			steps = append(steps,
				step{models.TransitionApproveManager, manager},
				step{models.TransitionReject, accounts},
			)
		}
	}

	if s.rng.Intn(10) == 0 {
		steps = append(steps, step{models.TransitionDisable, admin})
	}
	return steps
}
