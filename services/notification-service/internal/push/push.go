// Package push delivers notifications to mobile devices.
package push

import (
	"context"
	"errors"
	"log/slog"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/messaging"
	"google.golang.org/api/option"
)

type Message struct {
	Title string
	Body  string
	Data  map[string]string
}

type Sender interface {
	// Send returns the tokens the provider reported as no longer registered.
	Send(ctx context.Context, tokens []string, msg Message) (stale []string, err error)
	ProviderID() string
}

// Multicaster is the part of *messaging.Client the FCM sender uses.
type Multicaster interface {
	SendEachForMulticast(ctx context.Context, message *messaging.MulticastMessage) (*messaging.BatchResponse, error)
}

type FCMSender struct {
	client Multicaster
	logger *slog.Logger
}

// NewFCMSender builds a Firebase Cloud Messaging client from a service
// account file. An empty path uses application default credentials.
func NewFCMSender(ctx context.Context, credentialsFile string, logger *slog.Logger) (*FCMSender, error) {
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}
	app, err := firebase.NewApp(ctx, nil, opts...)
	if err != nil {
		return nil, err
	}
	client, err := app.Messaging(ctx)
	if err != nil {
		return nil, err
	}
	return NewFCMSenderWithClient(client, logger), nil
}

func NewFCMSenderWithClient(client Multicaster, logger *slog.Logger) *FCMSender {
	return &FCMSender{client: client, logger: logger}
}

func (s *FCMSender) ProviderID() string {
	return "fcm"
}

// maxMulticastTokens is the FCM limit per multicast request.
const maxMulticastTokens = 500

func (s *FCMSender) Send(ctx context.Context, tokens []string, msg Message) ([]string, error) {
	var stale []string
	var errs []error
	for start := 0; start < len(tokens); start += maxMulticastTokens {
		end := min(start+maxMulticastTokens, len(tokens))
		batch := tokens[start:end]
		resp, err := s.client.SendEachForMulticast(ctx, &messaging.MulticastMessage{
			Tokens:       batch,
			Notification: &messaging.Notification{Title: msg.Title, Body: msg.Body},
			Data:         msg.Data,
			Android: &messaging.AndroidConfig{
				Priority:     "high",
				Notification: &messaging.AndroidNotification{Sound: "default"},
			},
			APNS: &messaging.APNSConfig{
				Headers: map[string]string{"apns-priority": "10", "apns-push-type": "alert"},
				Payload: &messaging.APNSPayload{Aps: &messaging.Aps{Sound: "default"}},
			},
		})
		if err != nil {
			errs = append(errs, err)
			continue
		}
		for i, r := range resp.Responses {
			if r.Success {
				continue
			}
			if messaging.IsUnregistered(r.Error) || messaging.IsInvalidArgument(r.Error) {
				stale = append(stale, batch[i])
				continue
			}
			errs = append(errs, r.Error)
		}
		if resp.FailureCount > 0 {
			s.logger.Warn("fcm partial failure", "success", resp.SuccessCount, "failure", resp.FailureCount)
		}
	}
	return stale, errors.Join(errs...)
}

type NoopSender struct{}

func NewNoopSender() *NoopSender {
	return &NoopSender{}
}

func (s *NoopSender) ProviderID() string {
	return "push-noop"
}

func (s *NoopSender) Send(context.Context, []string, Message) ([]string, error) {
	return nil, nil
}
