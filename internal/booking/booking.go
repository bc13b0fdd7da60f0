// Package booking schedules practice interviews and persists them in the
// shared store.
package booking

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rbright/rehearse/internal/logging"
	"github.com/rbright/rehearse/internal/store"
	"github.com/rbright/rehearse/internal/validation"
)

// StoreKey is the document holding every booking.
const StoreKey = "mockInterview_scheduledInterviews"

const (
	StatusScheduled = "SCHEDULED"
	DefaultDuration = "45"
)

// ErrNotFound is returned when no booking has the requested id.
var ErrNotFound = errors.New("booking not found")

// Booking is one scheduled practice interview.
type Booking struct {
	ID            string `json:"id"`
	CandidateName string `json:"candidateName"`
	Position      string `json:"position,omitempty"`
	Date          string `json:"date"`
	Time          string `json:"time"`
	DateTime      string `json:"dateTime"`
	Duration      string `json:"duration"`
	Notes         string `json:"notes,omitempty"`
	RoomName      string `json:"roomName"`
	JoinURL       string `json:"joinUrl,omitempty"`
	Status        string `json:"status"`
	CreatedAt     string `json:"createdAt,omitempty"`
}

// Request is the input to Create.
type Request struct {
	CandidateName string `json:"candidateName" validate:"required"`
	Position      string `json:"position"`
	Date          string `json:"date" validate:"required,datetime=2006-01-02"`
	Time          string `json:"time" validate:"required,hhmm"`
	Duration      string `json:"duration" validate:"omitempty,numeric"`
	Notes         string `json:"notes"`
}

const requiredMessage = "Please fill at least candidate name, date and time."

var requestMessages = map[string]string{
	"candidateName.required": requiredMessage,
	"date.required":          requiredMessage,
	"time.required":          requiredMessage,
	"date.datetime":          "date must be YYYY-MM-DD",
	"time.hhmm":              "time must be HH:MM",
	"duration.numeric":       "duration must be a number of minutes",
}

// Options wires optional collaborators.
type Options struct {
	Validator *validation.Validator
	// JoinURL maps a room name to a shareable join link.
	JoinURL func(room string) string
	Logger  *slog.Logger
	NewID   func() string
	Suffix  func() string
	Now     func() time.Time
}

// Service creates, lists, and removes bookings.
type Service struct {
	store     store.Store
	validator *validation.Validator
	joinURL   func(string) string
	logger    *slog.Logger
	newID     func() string
	suffix    func() string
	now       func() time.Time

	mu sync.Mutex
}

func NewService(s store.Store, opts Options) *Service {
	svc := &Service{
		store:     s,
		validator: opts.Validator,
		joinURL:   opts.JoinURL,
		logger:    opts.Logger,
		newID:     opts.NewID,
		suffix:    opts.Suffix,
		now:       opts.Now,
	}
	if svc.validator == nil {
		svc.validator = validation.New()
	}
	if svc.logger == nil {
		svc.logger = logging.Discard()
	}
	if svc.newID == nil {
		svc.newID = uuid.NewString
	}
	if svc.suffix == nil {
		svc.suffix = func() string { return strings.ReplaceAll(uuid.NewString(), "-", "")[:5] }
	}
	if svc.now == nil {
		svc.now = time.Now
	}
	return svc
}

// Validate checks a request without saving it.
func (s *Service) Validate(req Request) error {
	return s.validator.Check(normalize(req), requestMessages)
}

// Create validates and stores a new booking, keeping the list sorted by time.
func (s *Service) Create(ctx context.Context, req Request) (Booking, error) {
	req = normalize(req)
	if err := s.validator.Check(req, requestMessages); err != nil {
		return Booking{}, err
	}

	roomName := "Mock Interview " + req.CandidateName + " " + s.suffix()
	b := Booking{
		ID:            s.newID(),
		CandidateName: req.CandidateName,
		Position:      req.Position,
		Date:          req.Date,
		Time:          req.Time,
		DateTime:      req.Date + "T" + req.Time,
		Duration:      req.Duration,
		Notes:         req.Notes,
		RoomName:      roomName,
		Status:        StatusScheduled,
		CreatedAt:     s.now().UTC().Format(time.RFC3339),
	}
	if s.joinURL != nil {
		b.JoinURL = s.joinURL(roomName)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	bookings, err := s.load(ctx)
	if err != nil {
		return Booking{}, err
	}
	bookings = append(bookings, b)
	sortByDateTime(bookings)
	if err := s.store.Save(ctx, StoreKey, bookings); err != nil {
		return Booking{}, err
	}

	s.logger.Info("booking created", "id", b.ID, "date_time", b.DateTime, "room", b.RoomName)
	return b, nil
}

// List returns every booking ordered by date and time.
func (s *Service) List(ctx context.Context) ([]Booking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	bookings, err := s.load(ctx)
	if err != nil {
		return nil, err
	}
	sortByDateTime(bookings)
	return bookings, nil
}

// Get finds one booking by id.
func (s *Service) Get(ctx context.Context, id string) (Booking, error) {
	bookings, err := s.List(ctx)
	if err != nil {
		return Booking{}, err
	}
	for _, b := range bookings {
		if b.ID == id {
			return b, nil
		}
	}
	return Booking{}, ErrNotFound
}

// Delete removes the booking with id.
func (s *Service) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	bookings, err := s.load(ctx)
	if err != nil {
		return err
	}
	kept := bookings[:0]
	found := false
	for _, b := range bookings {
		if b.ID == id {
			found = true
			continue
		}
		kept = append(kept, b)
	}
	if !found {
		return ErrNotFound
	}
	if err := s.store.Save(ctx, StoreKey, kept); err != nil {
		return err
	}
	s.logger.Info("booking deleted", "id", id)
	return nil
}

func (s *Service) load(ctx context.Context) ([]Booking, error) {
	var bookings []Booking
	err := s.store.Load(ctx, StoreKey, &bookings)
	if errors.Is(err, store.ErrNotFound) {
		return []Booking{}, nil
	}
	if err != nil {
		return nil, err
	}
	return bookings, nil
}

func normalize(req Request) Request {
	req.CandidateName = strings.TrimSpace(req.CandidateName)
	req.Position = strings.TrimSpace(req.Position)
	req.Date = strings.TrimSpace(req.Date)
	req.Time = strings.TrimSpace(req.Time)
	req.Duration = strings.TrimSpace(req.Duration)
	req.Notes = strings.TrimSpace(req.Notes)
	if req.Duration == "" {
		req.Duration = DefaultDuration
	}
	return req
}

// sortByDateTime orders by the ISO date-time string, which sorts
// chronologically for the fixed YYYY-MM-DDTHH:MM shape.
func sortByDateTime(bookings []Booking) {
	sort.SliceStable(bookings, func(i, j int) bool {
		return bookings[i].DateTime < bookings[j].DateTime
	})
}
