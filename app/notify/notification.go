package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/coct-data/service-alerts/app/alert"
	"github.com/coct-data/service-alerts/app/publish"
)

// Contract names the payload shape a channel carries. Consumers read the contract and its
// version from transport metadata, never from the payload.
type Contract string

const (
	// ContractIDs carries a JSON array of alert ids, e.g. [23121].
	ContractIDs Contract = "ids"
	// ContractAlerts carries a JSON array of latest-version alert objects.
	ContractAlerts Contract = "alerts"
)

func (c Contract) Version() int {
	switch c {
	case ContractIDs:
		return 1
	case ContractAlerts:
		return 2
	}
	return 0
}

func ParseContract(s string) (Contract, error) {
	c := Contract(s)
	if c.Version() == 0 {
		return "", fmt.Errorf("unknown notification contract %q", s)
	}
	return c, nil
}

const DefaultSubject = "New or updated Service Alerts!"

type Notification struct {
	RunID    string
	Contract Contract
	Subject  string
	AlertIDs []int64
	Payload  []byte
}

// Attributes is the transport metadata every channel attaches to the message.
func (n *Notification) Attributes() map[string]string {
	return map[string]string{
		"contract":         string(n.Contract),
		"contract_version": strconv.Itoa(n.Contract.Version()),
		"run_id":           n.RunID,
	}
}

// Build renders the notification for the changed alerts of one run.
func Build(runID string, contract Contract, changed []*alert.Alert) (*Notification, error) {
	ids := make([]int64, len(changed))
	for i, a := range changed {
		ids[i] = a.ID
	}

	var (
		payload []byte
		err     error
	)
	switch contract {
	case ContractIDs:
		payload, err = json.Marshal(ids)
	case ContractAlerts:
		payload, err = publish.ProjectList(publish.Latest, changed)
	default:
		err = fmt.Errorf("unknown notification contract %q", contract)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to build notification payload: %w", err)
	}

	return &Notification{
		RunID:    runID,
		Contract: contract,
		Subject:  DefaultSubject,
		AlertIDs: ids,
		Payload:  payload,
	}, nil
}

type Notifier interface {
	Notify(ctx context.Context, n *Notification) error
	Name() string
}

// DeliveryError is a failed send on one channel. It never rolls back the run.
type DeliveryError struct {
	Channel string
	Err     error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("failed to deliver notification via %s: %v", e.Channel, e.Err)
}

func (e *DeliveryError) Unwrap() error {
	return e.Err
}
