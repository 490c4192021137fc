package service

import (
	"context"
	"strings"

	"tasksync/internal/database"
	"tasksync/internal/domain"
	"tasksync/internal/events"
	"tasksync/internal/metrics"
	"tasksync/internal/models"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// TaskUpdate carries the mutable task fields; nil means "leave as is".
type TaskUpdate struct {
	Title       *string `json:"title"`
	Description *string `json:"description"`
	Completed   *bool   `json:"completed"`
}

// TaskService validates task mutations and delegates to the repository, which
// commits the store write and the sync-queue write as one unit.
type TaskService struct {
	repo     domain.TaskRepository
	eventBus domain.EventPublisher
	logger   zerolog.Logger
}

func NewTaskService(repo domain.TaskRepository, eventBus domain.EventPublisher, logger *zerolog.Logger) *TaskService {
	return &TaskService{
		repo:     repo,
		eventBus: eventBus,
		logger:   logger.With().Str("component", "task_service").Logger(),
	}
}

func (s *TaskService) Create(ctx context.Context, title, description string) (*models.Task, error) {
	if strings.TrimSpace(title) == "" {
		return nil, database.ErrTitleRequired
	}

	task := &models.Task{
		ID:          uuid.NewString(),
		Title:       title,
		Description: description,
	}

	if err := s.repo.CreateTask(ctx, task); err != nil {
		return nil, err
	}

	metrics.IncTaskMutation(models.OperationCreate)
	s.publishEvent(events.EventTaskCreated, task)
	s.logger.Debug().Str("task_id", task.ID).Msg("task created")

	return task, nil
}

func (s *TaskService) Get(ctx context.Context, id string) (*models.Task, error) {
	return s.repo.GetTask(ctx, id, false)
}

func (s *TaskService) List(ctx context.Context) ([]models.Task, error) {
	return s.repo.ListTasks(ctx, false)
}

func (s *TaskService) Update(ctx context.Context, id string, update TaskUpdate) (*models.Task, error) {
	task, err := s.repo.GetTask(ctx, id, false)
	if err != nil {
		return nil, err
	}

	if update.Title != nil {
		task.Title = *update.Title
	}
	if update.Description != nil {
		task.Description = *update.Description
	}
	if update.Completed != nil {
		task.Completed = *update.Completed
	}

	if err := s.repo.UpdateTask(ctx, task); err != nil {
		return nil, err
	}

	metrics.IncTaskMutation(models.OperationUpdate)
	s.publishEvent(events.EventTaskUpdated, task)

	return task, nil
}

func (s *TaskService) Delete(ctx context.Context, id string) error {
	if err := s.repo.SoftDeleteTask(ctx, id); err != nil {
		return err
	}

	metrics.IncTaskMutation(models.OperationDelete)
	s.publishEvent(events.EventTaskDeleted, map[string]string{"task_id": id})

	return nil
}

func (s *TaskService) publishEvent(eventType string, payload interface{}) {
	if s.eventBus == nil {
		return
	}
	if err := s.eventBus.PublishJSON(eventType, payload); err != nil {
		s.logger.Error().Err(err).Str("event", eventType).Msg("publish event")
	}
}
