package worker

import (
	"context"
	"encoding/json"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/spaarke-dev/sdap-bff/access"
)

// PermissionChangedMessage is the body published to documents.permissionchanged
// whenever an upstream permission write invalidates a cached AccessSnapshot.
type PermissionChangedMessage struct {
	UserID     string `json:"userId"`
	ResourceID string `json:"resourceId"`
}

// JobSubmittedMessage is the body published to files.jobsubmitted. Processing
// the job itself (virus scan, conversion, indexing, ...) is out of scope:
// §1 excludes "background job processors ... beyond the idempotency contract
// they share with the core cache." This handler only proves the contract —
// dedup via the ledger and an observable log line — not the job's effects.
type JobSubmittedMessage struct {
	JobID      string `json:"jobId"`
	ResourceID string `json:"resourceId"`
	Kind       string `json:"kind"`
}

// PermissionChangedSpec builds the QueueSpec that narrows the
// AccessSnapshot staleness window by evicting the cached entry as soon as
// the upstream system announces a permission change, instead of waiting out
// the full TTL.
func PermissionChangedSpec(cached *access.Cached, log *logrus.Entry) QueueSpec {
	return QueueSpec{
		Name:        "documents.permissionchanged",
		ConsumerTag: "sdap-bff-permission-changed",
		Retention:   10 * time.Minute,
		Handler: func(ctx context.Context, body []byte) error {
			var msg PermissionChangedMessage
			if err := json.Unmarshal(body, &msg); err != nil {
				log.WithError(err).Warn("discarding malformed permissionchanged message")
				return nil
			}
			if err := cached.Invalidate(ctx, msg.UserID, msg.ResourceID); err != nil {
				log.WithError(err).WithFields(logrus.Fields{
					"userId":     msg.UserID,
					"resourceId": msg.ResourceID,
				}).Warn("failed to invalidate cached access snapshot")
				return err
			}
			log.WithFields(logrus.Fields{
				"userId":     msg.UserID,
				"resourceId": msg.ResourceID,
			}).Info("invalidated cached access snapshot")
			return nil
		},
	}
}

// JobSubmittedSpec builds the QueueSpec for files.jobsubmitted. It exists to
// demonstrate the shared idempotency contract for Service-Bus-style job
// consumers; actual job execution is a downstream concern.
func JobSubmittedSpec(log *logrus.Entry) QueueSpec {
	return QueueSpec{
		Name:        "files.jobsubmitted",
		ConsumerTag: "sdap-bff-job-submitted",
		Retention:   24 * time.Hour,
		Handler: func(ctx context.Context, body []byte) error {
			var msg JobSubmittedMessage
			if err := json.Unmarshal(body, &msg); err != nil {
				log.WithError(err).Warn("discarding malformed jobsubmitted message")
				return nil
			}
			log.WithFields(logrus.Fields{
				"jobId":      msg.JobID,
				"resourceId": msg.ResourceID,
				"kind":       msg.Kind,
			}).Info("observed job submission")
			return nil
		},
	}
}
