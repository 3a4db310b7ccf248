package hotstore

import (
	"errors"
	"testing"

	"github.com/redis/go-redis/v9"

	"github.com/thgg666/seckill-core/internal/domain"
)

func TestTranslateErr_NilPassesThrough(t *testing.T) {
	if translateErr(nil) != nil {
		t.Error("expected a nil error to pass through unchanged")
	}
}

func TestTranslateErr_RedisNilBecomesNotFound(t *testing.T) {
	err := translateErr(redis.Nil)
	if domain.KindOf(err) != domain.KindNotFound {
		t.Fatalf("expected KindNotFound, got %v", domain.KindOf(err))
	}
}

func TestTranslateErr_WrongTypeBecomesKindWrongType(t *testing.T) {
	err := translateErr(errors.New("WRONGTYPE Operation against a key holding the wrong kind of value"))
	if domain.KindOf(err) != domain.KindWrongType {
		t.Fatalf("expected KindWrongType, got %v", domain.KindOf(err))
	}
}

func TestTranslateErr_UnknownErrorBecomesStoreUnavailable(t *testing.T) {
	err := translateErr(errors.New("connection refused"))
	if domain.KindOf(err) != domain.KindStoreUnavailable {
		t.Fatalf("expected KindStoreUnavailable, got %v", domain.KindOf(err))
	}
}
