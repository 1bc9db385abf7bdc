// Package s3 stores archival batches in Amazon S3.
//
//	cfg, err := config.LoadDefaultConfig(ctx)
//	if err != nil { ... }
//	store := s3.NewStore(awss3.NewFromConfig(cfg), "archive-bucket",
//	    s3.WithPrefix("vectier/"),
//	)
//
// Reads are ranged GETs. Writes stream through the multipart upload manager,
// so a batch never has to be buffered whole. Credentials and region come
// from the ambient SDK configuration.
package s3
