// Package minio stores archival batches on MinIO or any other S3-compatible
// endpoint through the native MinIO client.
//
//	client, err := minio.New("localhost:9000", &minio.Options{
//	    Creds: credentials.NewStaticV4(accessKey, secretKey, ""),
//	})
//	if err != nil { ... }
//	store := minioblob.NewStore(client, "archive", "vectier/")
package minio
