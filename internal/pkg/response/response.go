package response

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/xxxsen/common/webapi/proxyutil"

	"github.com/dsetyadi/chatagent/internal/pkg/errcode"
	appErr "github.com/dsetyadi/chatagent/internal/pkg/errors"
)

type codeErr struct {
	code uint32
	msg  string
}

func (e codeErr) Error() string {
	return e.msg
}

func (e codeErr) Code() uint32 {
	return e.code
}

func AsCodeErr(code uint32, msg string) error {
	return codeErr{code: code, msg: msg}
}

func Success(c *gin.Context, data interface{}) {
	proxyutil.SuccessJson(c, data)
}

func Error(c *gin.Context, code int, message string) {
	proxyutil.FailJson(c, http.StatusOK, AsCodeErr(uint32(code), message))
}

// FromError maps the service error taxonomy onto wire codes so
// handlers do not repeat the classification switch.
func FromError(c *gin.Context, err error) {
	switch {
	case appErr.IsNotFound(err):
		Error(c, errcode.ErrNotFound, err.Error())
	case appErr.IsValidation(err):
		Error(c, errcode.ErrInvalid, err.Error())
	case appErr.IsDuplicate(err):
		Error(c, errcode.ErrDuplicate, err.Error())
	case appErr.IsTimeout(err):
		Error(c, errcode.ErrTimeout, err.Error())
	case appErr.IsProvider(err):
		Error(c, errcode.ErrProviderFailed, err.Error())
	case appErr.IsStorage(err):
		Error(c, errcode.ErrStorageFailed, err.Error())
	default:
		Error(c, errcode.ErrInternal, err.Error())
	}
}
