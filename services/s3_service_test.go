package services

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"labchat_server/apperrors"
	"labchat_server/logger"
	"labchat_server/mocks"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func TestS3Service_Upload(t *testing.T) {
	ctrl := gomock.NewController(t)
	client := mocks.NewMockS3API(ctrl)

	t.Run("should put the object and return its public url", func(t *testing.T) {
		req := require.New(t)
		svc := NewS3Service(client, "lab-bucket", "eu-west-1", "", logger.Discard())

		client.EXPECT().
			PutObject(gomock.Any(), gomock.Any()).
			DoAndReturn(func(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
				req.Equal("lab-bucket", aws.ToString(in.Bucket))
				req.Equal("group-images/g1/x.png", aws.ToString(in.Key))
				req.Equal("image/png", aws.ToString(in.ContentType))
				req.Equal(int64(3), aws.ToInt64(in.ContentLength))
				return &s3.PutObjectOutput{}, nil
			}).
			Times(1)

		url, err := svc.Upload(context.Background(), "group-images/g1/x.png", "image/png", strings.NewReader("png"), 3)
		req.NoError(err)
		req.Equal("https://lab-bucket.s3.eu-west-1.amazonaws.com/group-images/g1/x.png", url)
	})

	t.Run("should hide storage failures behind an internal error", func(t *testing.T) {
		req := require.New(t)
		svc := NewS3Service(client, "lab-bucket", "eu-west-1", "https://cdn.example.org/", logger.Discard())

		client.EXPECT().PutObject(gomock.Any(), gomock.Any()).Return(nil, errors.New("access denied")).Times(1)

		_, err := svc.Upload(context.Background(), "k", "image/png", strings.NewReader("png"), 3)
		req.Equal(apperrors.KindInternal, apperrors.KindOf(err))
		req.Equal("https://cdn.example.org/k", svc.PublicURL("k"))
	})
}

func TestS3Service_Group_Image_Key(t *testing.T) {
	at := time.Date(2026, 5, 4, 9, 30, 0, 0, time.UTC)
	require.Equal(t, "group-images/g1/20260504093000-cover%20photo.png", GroupImageKey("g1", `C:\Users\x\cover photo.png`, at))
	require.Equal(t, "group-images/g1/20260504093000-pic.png", GroupImageKey("g1", "../../pic.png", at))
}
