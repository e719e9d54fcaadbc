package publish

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// Transport is the broker connection the Publisher sends over. It
// exists so tests can substitute a fake without a live broker.
type Transport interface {
	Connect() error
	Connected() bool
	Publish(topic string, qos byte, payload []byte) error
	Disconnect()
}

// Certificates names the mutual-TLS material used to authenticate to
// the broker.
type Certificates struct {
	CA     string
	Client string
	Key    string
}

// MQTTTransport wraps paho.mqtt.golang with mutual TLS and a persistent
// session.
type MQTTTransport struct {
	client mqtt.Client
}

// NewMQTTTransport builds a Transport connecting to endpoint:port over
// mutual TLS, keeping a persistent session under clientID.
func NewMQTTTransport(endpoint string, port int, clientID string, keepAlive time.Duration, certs Certificates) (*MQTTTransport, error) {
	tlsConfig, err := buildTLSConfig(certs)
	if err != nil {
		return nil, fmt.Errorf("publish: building TLS config: %w", err)
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(fmt.Sprintf("ssl://%s:%d", endpoint, port))
	opts.SetClientID(clientID)
	opts.SetTLSConfig(tlsConfig)
	opts.SetKeepAlive(keepAlive)
	opts.SetCleanSession(false)
	opts.SetAutoReconnect(true)

	return &MQTTTransport{client: mqtt.NewClient(opts)}, nil
}

func buildTLSConfig(certs Certificates) (*tls.Config, error) {
	cert, err := tls.LoadX509KeyPair(certs.Client, certs.Key)
	if err != nil {
		return nil, fmt.Errorf("loading client certificate: %w", err)
	}

	caBytes, err := os.ReadFile(certs.CA)
	if err != nil {
		return nil, fmt.Errorf("reading CA certificate: %w", err)
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(caBytes) {
		return nil, fmt.Errorf("no certificates parsed from %s", certs.CA)
	}

	return &tls.Config{
		Certificates: []tls.Certificate{cert},
		RootCAs:      pool,
		MinVersion:   tls.VersionTLS12,
	}, nil
}

// Connect blocks until the broker connection is established or fails.
func (t *MQTTTransport) Connect() error {
	token := t.client.Connect()
	token.Wait()
	return token.Error()
}

// Connected reports whether the underlying client believes it has a
// live connection.
func (t *MQTTTransport) Connected() bool {
	return t.client.IsConnectionOpen()
}

// Publish sends payload to topic at the given QoS, blocking until the
// broker acknowledges or the client gives up.
func (t *MQTTTransport) Publish(topic string, qos byte, payload []byte) error {
	token := t.client.Publish(topic, qos, false, payload)
	token.Wait()
	return token.Error()
}

// Disconnect closes the connection, waiting up to 250ms to flush.
func (t *MQTTTransport) Disconnect() {
	t.client.Disconnect(250)
}
