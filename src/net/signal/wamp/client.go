package wamp

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"fmt"
	"io/ioutil"
	"os"
	"strings"
	"time"

	"github.com/gammazero/nexus/v3/client"
	"github.com/gammazero/nexus/v3/router"
	"github.com/gammazero/nexus/v3/wamp"
	"github.com/mosaicnetworks/tabsync/src/net/signal"
	"github.com/pion/webrtc/v2"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Client implements the Signal interface. It sends and receives SDP offers
// through a WAMP router.
type Client struct {
	id       string
	config   client.Config
	client   *client.Client
	consumer chan signal.OfferPromise
	logger   *logrus.Entry
}

// NewClient opens a WebSocket connection to the WAMP router at routerURL. For
// wss:// URLs, caFile names a PEM certificate to trust; when it does not exist
// the platform's trusted certificates are used.
func NewClient(
	routerURL string,
	realm string,
	id string,
	caFile string,
	insecureSkipVerify bool,
	responseTimeout time.Duration,
	logger *logrus.Entry,
) (*Client, error) {

	cfg := ClientConfig(realm, responseTimeout, logger)

	if strings.HasPrefix(routerURL, "wss://") {
		tlscfg, err := tlsConfig(caFile, insecureSkipVerify, logger)
		if err != nil {
			return nil, err
		}
		cfg.TlsCfg = tlscfg
	}

	cli, err := client.ConnectNet(context.Background(), routerURL, cfg)
	if err != nil {
		return nil, errors.Wrapf(err, "connecting to %s", routerURL)
	}

	return newClient(cli, id, cfg, logger), nil
}

// NewLocalClient connects to a router running in the same process.
func NewLocalClient(
	r router.Router,
	realm string,
	id string,
	responseTimeout time.Duration,
	logger *logrus.Entry,
) (*Client, error) {
	cfg := ClientConfig(realm, responseTimeout, logger)

	cli, err := client.ConnectLocal(r, cfg)
	if err != nil {
		return nil, err
	}

	return newClient(cli, id, cfg, logger), nil
}

// ClientConfig is the client configuration shared by signal clients and WAMP
// channels.
func ClientConfig(realm string, responseTimeout time.Duration, logger *logrus.Entry) client.Config {
	return client.Config{
		Realm:           realm,
		ResponseTimeout: responseTimeout,
		Logger:          logger,
	}
}

func newClient(cli *client.Client, id string, cfg client.Config, logger *logrus.Entry) *Client {
	return &Client{
		id:       id,
		config:   cfg,
		client:   cli,
		consumer: make(chan signal.OfferPromise),
		logger:   logger,
	}
}

func tlsConfig(caFile string, insecureSkipVerify bool, logger *logrus.Entry) (*tls.Config, error) {
	tlscfg := &tls.Config{}

	if insecureSkipVerify {
		logger.Debug("Skip Verify. Accepting any certificate provided by signal server.")
		tlscfg.InsecureSkipVerify = true
		return tlscfg, nil
	}

	if _, err := os.Stat(caFile); caFile == "" || os.IsNotExist(err) {
		logger.Debug("No certificate file found. Relying on platform trusted certificates.")
		return tlscfg, nil
	}

	certPEM, err := ioutil.ReadFile(caFile)
	if err != nil {
		return nil, err
	}

	roots := x509.NewCertPool()
	if !roots.AppendCertsFromPEM(certPEM) {
		return nil, errors.New("failed to import certificate to trust")
	}
	tlscfg.RootCAs = roots

	block, _ := pem.Decode(certPEM)
	if block == nil {
		return nil, errors.New("failed to decode certificate to trust")
	}

	cert, err := x509.ParseCertificate(block.Bytes)
	if err != nil {
		return nil, err
	}

	logger.Debugf("Trusting certificate %s with CN: %s", caFile, cert.Subject.CommonName)

	// Validate against the CN of the trusted cert even if it does not match
	// the DNS name.
	tlscfg.ServerName = cert.Subject.CommonName

	return tlscfg, nil
}

// ID implements the Signal interface.
func (c *Client) ID() string {
	return c.id
}

// Listen implements the Signal interface. It registers a procedure, named
// after the client's ID, which forwards offers to the consumer channel.
func (c *Client) Listen() error {
	if err := c.client.Register(c.ID(), c.callHandler, nil); err != nil {
		c.logger.WithError(err).Error("Failed to register procedure")
		return err
	}
	c.logger.Debug("Registered procedure with router")
	return nil
}

// Offer implements the Signal interface. It sends an offer and waits for an
// answer.
func (c *Client) Offer(target string, offer webrtc.SessionDescription) (*webrtc.SessionDescription, error) {
	raw, err := json.Marshal(offer)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), c.config.ResponseTimeout)
	defer cancel()

	result, err := c.client.Call(ctx, target, nil, wamp.List{c.id, string(raw)}, nil, nil)
	if err != nil {
		return nil, errors.Wrapf(err, "calling %s", target)
	}

	if len(result.Arguments) == 0 {
		return nil, errors.New("empty answer")
	}

	sdp, ok := wamp.AsString(result.Arguments[0])
	if !ok {
		return nil, errors.New("answer is not a string")
	}

	answer := webrtc.SessionDescription{}
	if err := json.Unmarshal([]byte(sdp), &answer); err != nil {
		return nil, err
	}

	return &answer, nil
}

// Consumer implements the Signal interface.
func (c *Client) Consumer() <-chan signal.OfferPromise {
	return c.consumer
}

// Close implements the Signal interface.
func (c *Client) Close() error {
	c.client.Unregister(c.ID())
	return c.client.Close()
}

// callHandler is called when an offer is received from the router.
func (c *Client) callHandler(ctx context.Context, inv *wamp.Invocation) client.InvokeResult {
	if len(inv.Arguments) != 2 {
		return errResult(
			fmt.Sprintf("Invocation should contain 2 arguments, not %d", len(inv.Arguments)))
	}

	from, ok := wamp.AsString(inv.Arguments[0])
	if !ok {
		return errResult("Error reading invocation first argument")
	}

	sdp, ok := wamp.AsString(inv.Arguments[1])
	if !ok {
		return errResult("Error reading invocation second argument")
	}

	offer := webrtc.SessionDescription{}
	if err := json.Unmarshal([]byte(sdp), &offer); err != nil {
		return errResult(fmt.Sprintf("Error parsing invocation SDP: %v", err))
	}

	respCh := make(chan signal.OfferPromiseResponse, 1)

	promise := signal.OfferPromise{
		From:     from,
		Offer:    offer,
		RespChan: respCh,
	}

	timer := time.NewTimer(c.config.ResponseTimeout)
	defer timer.Stop()

	select {
	case c.consumer <- promise:
	case <-timer.C:
		return errResult("Callee TIMEOUT")
	}

	select {
	case <-timer.C:
		return errResult("Callee TIMEOUT")
	case resp := <-respCh:
		if resp.Error != nil {
			return errResult(resp.Error.Error())
		}

		raw, err := json.Marshal(resp.Answer)
		if err != nil {
			return errResult(fmt.Sprintf("Error parsing answer: %v", err))
		}

		return client.InvokeResult{
			Args: wamp.List{string(raw)},
		}
	}
}

func errResult(msg string) client.InvokeResult {
	return client.InvokeResult{
		Err:  ErrProcessingOffer,
		Args: wamp.List{msg},
	}
}
