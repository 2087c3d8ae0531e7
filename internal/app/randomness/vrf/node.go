package vrf

import (
	"context"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"go.dedis.ch/kyber/v3"
	"go.dedis.ch/kyber/v3/pairing"
	"go.dedis.ch/kyber/v3/sign/bls"
	"go.dedis.ch/kyber/v3/util/random"

	"github.com/R3E-Network/wager_layer/pkg/logger"
)

// FulfilFunc receives a signature for a request.
type FulfilFunc func(ctx context.Context, requestID string, sig []byte) error

// Node is an in-process coordinator holding the BLS secret key. It signs every
// job on its own goroutine and pushes the result through the fulfil callback.
type Node struct {
	suite  *pairing.SuiteBn256
	secret kyber.Scalar
	public kyber.Point
	delay  time.Duration
	log    *logger.Logger

	mu     sync.Mutex
	fulfil FulfilFunc
	wg     sync.WaitGroup
}

var _ Coordinator = (*Node)(nil)

// NewNode generates a fresh key pair.
func NewNode(log *logger.Logger) *Node {
	suite := pairing.NewSuiteBn256()
	secret, public := bls.NewKeyPair(suite, random.New())
	return newNode(suite, secret, public, log)
}

// NewNodeFromSecret restores a node from a hex-encoded scalar.
func NewNodeFromSecret(secretHex string, log *logger.Logger) (*Node, error) {
	suite := pairing.NewSuiteBn256()
	raw, err := hex.DecodeString(secretHex)
	if err != nil {
		return nil, fmt.Errorf("decode vrf secret: %w", err)
	}
	secret := suite.G2().Scalar()
	if err := secret.UnmarshalBinary(raw); err != nil {
		return nil, fmt.Errorf("unmarshal vrf secret: %w", err)
	}
	public := suite.G2().Point().Mul(secret, nil)
	return newNode(suite, secret, public, log), nil
}

func newNode(suite *pairing.SuiteBn256, secret kyber.Scalar, public kyber.Point, log *logger.Logger) *Node {
	if log == nil {
		log = logger.NewDefault("vrf-node")
	}
	return &Node{suite: suite, secret: secret, public: public, log: log}
}

// WithDelay makes the node wait before signing each job.
func (n *Node) WithDelay(d time.Duration) *Node {
	n.delay = d
	return n
}

// OnFulfil sets the callback that receives signatures.
func (n *Node) OnFulfil(fn FulfilFunc) {
	n.mu.Lock()
	n.fulfil = fn
	n.mu.Unlock()
}

// PublicKey returns the hex-encoded G2 public key.
func (n *Node) PublicKey() string {
	raw, err := n.public.MarshalBinary()
	if err != nil {
		n.log.WithError(err).Error("marshal vrf public key")
		return ""
	}
	return hex.EncodeToString(raw)
}

// Sign signs the message for a job synchronously.
func (n *Node) Sign(job Job) ([]byte, error) {
	return bls.Sign(n.suite, n.secret, Message(job.Seed, job.RequestID))
}

func (n *Node) RequestWords(_ context.Context, job Job) error {
	n.mu.Lock()
	fulfil := n.fulfil
	n.mu.Unlock()
	if fulfil == nil {
		return fmt.Errorf("vrf node has no fulfil callback")
	}

	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		if n.delay > 0 {
			time.Sleep(n.delay)
		}
		entry := n.log.WithField("request_id", job.RequestID)
		sig, err := n.Sign(job)
		if err != nil {
			entry.WithError(err).Error("vrf sign failed")
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := fulfil(ctx, job.RequestID, sig); err != nil {
			entry.WithError(err).Warn("vrf fulfilment rejected")
			return
		}
		entry.Debug("vrf request fulfilled")
	}()
	return nil
}

// Wait blocks until every in-flight job has been delivered.
func (n *Node) Wait() {
	n.wg.Wait()
}
