// Package s3config implements iface.ConfigStore backed by S3: each service's
// canonical ServiceSpec lives at one object key (<prefix><service>.json).
// Grounded on the pack's aws-sdk-go-v2/service/s3 usage pattern: a plain
// client.GetObject/PutObject pair, no local caching layer; every Get reads
// the object. MasterLoop calls Get once each time it becomes leader.
/*
 * Copyright (c) 2018-2024, NVIDIA CORPORATION. All rights reserved.
 */
package s3config

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/NVIDIA/aismaster/cluster"
	"github.com/NVIDIA/aismaster/cmn/cos"
)

type Store struct {
	client *s3.Client
	bucket string
	prefix string
}

func New(client *s3.Client, bucket, prefix string) *Store {
	return &Store{client: client, bucket: bucket, prefix: prefix}
}

func (s *Store) key(service cluster.ServiceId) string {
	return fmt.Sprintf("%s%s.json", s.prefix, service)
}

func (s *Store) Get(ctx context.Context, service cluster.ServiceId) (cluster.ServiceSpec, error) {
	key := s.key(service)
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return cluster.ServiceSpec{}, cluster.NewError(cluster.InvalidService, string(service)+": "+err.Error())
	}
	defer out.Body.Close()

	b, err := io.ReadAll(out.Body)
	if err != nil {
		return cluster.ServiceSpec{}, err
	}
	var spec cluster.ServiceSpec
	if err := cos.UnmarshalInto(b, &spec); err != nil {
		return cluster.ServiceSpec{}, err
	}
	return spec, nil
}

// Put uploads spec as the service's canonical configuration. Not part of
// iface.ConfigStore (MasterLoop never writes config); exposed for operator
// tooling and tests.
func (s *Store) Put(ctx context.Context, spec cluster.ServiceSpec) error {
	body := cos.MustMarshal(spec)
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(spec.ServiceId)),
		Body:   bytes.NewReader(body),
	})
	return err
}
