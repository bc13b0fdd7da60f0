// Package conference creates live-interview rooms on LiveKit and mints join
// tokens for interviewer and candidate participants.
package conference

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/livekit/protocol/auth"
	"github.com/livekit/protocol/livekit"
	lksdk "github.com/livekit/server-sdk-go/v2"
	"google.golang.org/protobuf/encoding/protojson"

	"github.com/rbright/rehearse/internal/logging"
)

// Role selects the participant display name.
type Role string

const (
	RoleInterviewer Role = "interviewer"
	RoleCandidate   Role = "candidate"
)

// DisplayName is the name other participants see.
func (r Role) DisplayName() string {
	if r == RoleInterviewer {
		return "Interviewer"
	}
	return "Candidate"
}

// ParseRole accepts interviewer or candidate, case-insensitively.
func ParseRole(raw string) (Role, error) {
	switch Role(strings.ToLower(strings.TrimSpace(raw))) {
	case RoleInterviewer:
		return RoleInterviewer, nil
	case RoleCandidate, "":
		return RoleCandidate, nil
	default:
		return "", fmt.Errorf("unknown role %q (want interviewer or candidate)", raw)
	}
}

// RoomService is the subset of the LiveKit room API used here.
type RoomService interface {
	CreateRoom(ctx context.Context, req *livekit.CreateRoomRequest) (*livekit.Room, error)
	ListParticipants(ctx context.Context, req *livekit.ListParticipantsRequest) (*livekit.ListParticipantsResponse, error)
	RemoveParticipant(ctx context.Context, req *livekit.RoomParticipantIdentity) (*livekit.RemoveParticipantResponse, error)
}

// Config wires a Service.
type Config struct {
	URL       string
	APIKey    string
	APISecret string
	TokenTTL  time.Duration
	Mock      bool
	Logger    *slog.Logger
}

// Service joins participants to rooms.
type Service struct {
	rooms     RoomService
	url       string
	apiKey    string
	apiSecret string
	tokenTTL  time.Duration
	logger    *slog.Logger
}

// New builds a Service backed by LiveKit, or by an in-process room list when
// cfg.Mock is set.
func New(cfg Config) *Service {
	var rooms RoomService
	if cfg.Mock {
		rooms = NewMockRooms()
	} else {
		rooms = lksdk.NewRoomServiceClient(cfg.URL, cfg.APIKey, cfg.APISecret)
	}
	return NewWithRooms(rooms, cfg)
}

// NewWithRooms builds a Service over an explicit RoomService.
func NewWithRooms(rooms RoomService, cfg Config) *Service {
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	ttl := cfg.TokenTTL
	if ttl <= 0 {
		ttl = 2 * time.Hour
	}
	apiKey, apiSecret := cfg.APIKey, cfg.APISecret
	if cfg.Mock && (apiKey == "" || apiSecret == "") {
		apiKey, apiSecret = "devkey", "secret"
	}
	return &Service{
		rooms:     rooms,
		url:       strings.TrimSpace(cfg.URL),
		apiKey:    apiKey,
		apiSecret: apiSecret,
		tokenTTL:  ttl,
		logger:    logger,
	}
}

// NewRoomName generates an ad-hoc room name.
func NewRoomName() string {
	return "InterviewAce-" + strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
}

// Participant is one joined seat in a room.
type Participant struct {
	Room        *livekit.Room
	Identity    string
	DisplayName string
	Role        Role
	Token       string
	ServerURL   string
}

// MeetURL links the participant into LiveKit Meet's custom-server view.
func (p Participant) MeetURL() string {
	q := url.Values{}
	q.Set("liveKitUrl", p.ServerURL)
	q.Set("token", p.Token)
	return "https://meet.livekit.io/custom?" + q.Encode()
}

// Join creates room (a generated name when empty) and mints a token.
func (s *Service) Join(ctx context.Context, room string, role Role) (Participant, error) {
	room = strings.TrimSpace(room)
	if room == "" {
		room = NewRoomName()
	}

	info, err := s.rooms.CreateRoom(ctx, &livekit.CreateRoomRequest{
		Name:             room,
		EmptyTimeout:     300,
		DepartureTimeout: 30,
		MaxParticipants:  4,
	})
	if err != nil {
		return Participant{}, fmt.Errorf("create room %q: %w", room, err)
	}

	identity := string(role) + "-" + strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	token, err := s.token(room, identity, role.DisplayName())
	if err != nil {
		return Participant{}, err
	}

	s.logger.Info("live room joined", "room", room, "room_sid", info.GetSid(), "identity", identity, "role", role)
	return Participant{
		Room:        info,
		Identity:    identity,
		DisplayName: role.DisplayName(),
		Role:        role,
		Token:       token,
		ServerURL:   websocketURL(s.url),
	}, nil
}

// Leave removes the participant from its room.
func (s *Service) Leave(ctx context.Context, p Participant) error {
	_, err := s.rooms.RemoveParticipant(ctx, &livekit.RoomParticipantIdentity{
		Room:     p.Room.GetName(),
		Identity: p.Identity,
	})
	if err != nil {
		return fmt.Errorf("remove participant %s: %w", p.Identity, err)
	}
	s.logger.Info("live room left", "room", p.Room.GetName(), "identity", p.Identity)
	return nil
}

// Hold keeps the seat until ctx is cancelled, then leaves.
func (s *Service) Hold(ctx context.Context, p Participant) error {
	<-ctx.Done()
	leaveCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.Leave(leaveCtx, p)
}

// Participants lists who is currently in room.
func (s *Service) Participants(ctx context.Context, room string) ([]*livekit.ParticipantInfo, error) {
	resp, err := s.rooms.ListParticipants(ctx, &livekit.ListParticipantsRequest{Room: room})
	if err != nil {
		return nil, fmt.Errorf("list participants in %q: %w", room, err)
	}
	return resp.GetParticipants(), nil
}

func (s *Service) token(room string, identity string, name string) (string, error) {
	canPublish, canSubscribe, canPublishData := true, true, true
	at := auth.NewAccessToken(s.apiKey, s.apiSecret)
	at.AddGrant(&auth.VideoGrant{
		RoomJoin:       true,
		Room:           room,
		CanPublish:     &canPublish,
		CanSubscribe:   &canSubscribe,
		CanPublishData: &canPublishData,
	}).
		SetIdentity(identity).
		SetName(name).
		SetValidFor(s.tokenTTL)

	token, err := at.ToJWT()
	if err != nil {
		return "", fmt.Errorf("generate join token: %w", err)
	}
	return token, nil
}

// RoomJSON renders room metadata as indented protobuf JSON.
func RoomJSON(room *livekit.Room) (string, error) {
	out, err := protojson.MarshalOptions{Multiline: true, Indent: "  ", EmitUnpopulated: false}.Marshal(room)
	if err != nil {
		return "", fmt.Errorf("encode room: %w", err)
	}
	return string(out), nil
}

// RoomLink is the address of room on the configured server, used for bookings.
func RoomLink(base string, room string) string {
	return strings.TrimSuffix(strings.TrimSpace(base), "/") + "/rooms/" + url.PathEscape(room)
}

func websocketURL(raw string) string {
	switch {
	case strings.HasPrefix(raw, "https://"):
		return "wss://" + strings.TrimPrefix(raw, "https://")
	case strings.HasPrefix(raw, "http://"):
		return "ws://" + strings.TrimPrefix(raw, "http://")
	default:
		return raw
	}
}
