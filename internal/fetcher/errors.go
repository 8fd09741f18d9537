package fetcher

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"net"
	"syscall"
)

// ErrorClass buckets network failures for reporting
type ErrorClass string

const (
	ClassNone              ErrorClass = ""
	ClassTimeout           ErrorClass = "timeout"
	ClassDNS               ErrorClass = "dns"
	ClassConnectionRefused ErrorClass = "connection_refused"
	ClassTLS               ErrorClass = "tls"
	ClassCanceled          ErrorClass = "canceled"
	ClassOther             ErrorClass = "other"
)

// Classify maps a transport error to its class
func Classify(err error) ErrorClass {
	if err == nil {
		return ClassNone
	}

	if errors.Is(err, context.Canceled) {
		return ClassCanceled
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ClassTimeout
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		if dnsErr.IsTimeout {
			return ClassTimeout
		}
		return ClassDNS
	}

	if errors.Is(err, syscall.ECONNREFUSED) {
		return ClassConnectionRefused
	}

	if isTLSError(err) {
		return ClassTLS
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ClassTimeout
	}

	return ClassOther
}

func isTLSError(err error) bool {
	var (
		recordErr   tls.RecordHeaderError
		verifyErr   *tls.CertificateVerificationError
		unknownAuth x509.UnknownAuthorityError
		hostErr     x509.HostnameError
		invalidErr  x509.CertificateInvalidError
	)
	return errors.As(err, &recordErr) ||
		errors.As(err, &verifyErr) ||
		errors.As(err, &unknownAuth) ||
		errors.As(err, &hostErr) ||
		errors.As(err, &invalidErr)
}

// FetchError carries the class alongside the underlying error
type FetchError struct {
	Class ErrorClass
	Err   error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("%s: %v", e.Class, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// Error returns the outcome's failure as a *FetchError, or nil
func (o *Outcome) Error() error {
	if !o.Failed() {
		return nil
	}
	return &FetchError{Class: o.ErrorClass, Err: o.Err}
}
