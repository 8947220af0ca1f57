package transfer

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"

	"github.com/vertextoedge/safefetch/internal/domain"
	"github.com/vertextoedge/safefetch/internal/port"
)

const defaultS3Region = "us-east-1"

// s3API is the part of the S3 client the opener needs
type s3API interface {
	GetObject(context.Context, *s3.GetObjectInput, ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

type s3Opener struct {
	cfg       S3Config
	mu        sync.Mutex
	clients   map[string]s3API
	newClient func(ctx context.Context, bucket string) (s3API, error)
}

func newS3Opener(cfg S3Config) *s3Opener {
	o := &s3Opener{cfg: cfg, clients: make(map[string]s3API)}
	o.newClient = o.loadClient
	return o
}

// client returns a cached per-bucket client, detecting the bucket region
// when none is configured
func (o *s3Opener) client(ctx context.Context, bucket string) (s3API, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if svc, ok := o.clients[bucket]; ok {
		return svc, nil
	}
	svc, err := o.newClient(ctx, bucket)
	if err != nil {
		return nil, err
	}
	o.clients[bucket] = svc
	return svc, nil
}

func (o *s3Opener) loadClient(ctx context.Context, bucket string) (s3API, error) {
	region := o.cfg.Region
	if region == "" {
		region = defaultS3Region
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load aws config: %w", err)
	}
	svc := s3.NewFromConfig(awsCfg, o.options)

	if o.cfg.Region == "" && o.cfg.Endpoint == "" {
		detected, err := manager.GetBucketRegion(ctx, svc, bucket)
		if err != nil {
			return nil, err
		}
		if detected != region {
			awsCfg.Region = detected
			svc = s3.NewFromConfig(awsCfg, o.options)
		}
	}
	return svc, nil
}

func (o *s3Opener) options(opts *s3.Options) {
	if o.cfg.Endpoint != "" {
		opts.BaseEndpoint = aws.String(o.cfg.Endpoint)
	}
	opts.UsePathStyle = o.cfg.UsePathStyle
}

func (o *s3Opener) fetch(ctx context.Context, u *url.URL, spec *port.TransferSpec, sink port.Sink, rep *port.TransferReport) error {
	bucket := u.Host
	key := strings.TrimPrefix(u.Path, "/")
	if bucket == "" || key == "" {
		return domain.NewFatalError(spec.URL, 0, "", errors.New("s3 url needs a bucket and a key"))
	}

	svc, err := o.client(ctx, bucket)
	if err != nil {
		return o.classify(spec.URL, err)
	}

	in := &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	}
	if !spec.IfModifiedSince.IsZero() {
		in.IfModifiedSince = aws.Time(spec.IfModifiedSince)
	}
	if spec.ResumeFrom > 0 {
		in.Range = aws.String(fmt.Sprintf("bytes=%d-", spec.ResumeFrom))
		if !spec.IfRange.IsZero() {
			in.IfUnmodifiedSince = aws.Time(spec.IfRange)
		}
	}

	out, err := svc.GetObject(ctx, in)
	switch status := statusOf(err); {
	case err == nil:
	case status == http.StatusNotModified:
		rep.StatusCode = status
		rep.NotModified = true
		return nil
	case status == http.StatusPreconditionFailed && spec.ResumeFrom > 0:
		// Object changed since the staged prefix was written
		if err := sink.Restart(); err != nil {
			return err
		}
		in.Range = nil
		in.IfUnmodifiedSince = nil
		if out, err = svc.GetObject(ctx, in); err != nil {
			return o.classify(spec.URL, err)
		}
	case status == http.StatusRequestedRangeNotSatisfiable && spec.ResumeFrom > 0:
		rep.StatusCode = status
		return nil
	default:
		return o.classify(spec.URL, err)
	}
	defer out.Body.Close()

	rep.StatusCode = http.StatusOK
	if in.Range != nil {
		rep.StatusCode = http.StatusPartialContent
	}
	rep.StatusText = http.StatusText(rep.StatusCode)
	rep.RemoteModTime = aws.ToTime(out.LastModified)

	return copyTo(spec.URL, sink, out.Body)
}

func (o *s3Opener) classify(rawURL string, err error) error {
	if status := statusOf(err); status != 0 {
		text := http.StatusText(status)
		var apiErr smithy.APIError
		if errors.As(err, &apiErr) {
			text = apiErr.ErrorCode()
		}
		if status == http.StatusRequestTimeout || status == http.StatusTooManyRequests || status >= 500 {
			return domain.NewTransientError(rawURL, status, text, err)
		}
		return domain.NewFatalError(rawURL, status, text, err)
	}
	return classify(rawURL, err)
}

func statusOf(err error) int {
	var re *awshttp.ResponseError
	if errors.As(err, &re) {
		return re.HTTPStatusCode()
	}
	return 0
}
